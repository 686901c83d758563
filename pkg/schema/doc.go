/*
Package schema validates extracted field values against the type constraints a
script node declares.

The extraction service returns loosely-typed JSON; nodes may pin fields to a
type ("int", "bool", "[string]", ...). Validation happens per turn on the
partial delta only: fields the turn did not produce are not errors, they are
simply still missing.
*/
package schema
