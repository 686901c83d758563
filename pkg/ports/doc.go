/*
Package ports defines the interfaces between the intake core and the outside
world (Hexagonal Architecture).

The core only ever sees these contracts; vendor SDKs, databases, and transport
stacks live behind adapters in pkg/adapters and internal/adapters.
*/
package ports
