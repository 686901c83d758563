package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/surreyclinic/intake"
	"github.com/surreyclinic/intake/internal/presentation/tui"
	"github.com/surreyclinic/intake/pkg/domain"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [script]",
	Short: "Run an interactive interview in the terminal",
	Long: `Walks the interview script in the terminal using the offline keyword
extractor. Useful for reviewing a script before deployment; answers are parsed
with phrase heuristics, not a model. Multi-field questions accept
"field: value" pairs separated by commas.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Println("simulate needs an interactive terminal (stdin is not a TTY)")
			os.Exit(1)
		}

		scr, err := scriptFromFlags(cmd, args)
		if err != nil {
			fmt.Printf("Error loading script: %v\n", err)
			os.Exit(1)
		}
		specialty, _ := cmd.Flags().GetString("specialty")

		tui.PrintBanner(intake.Version)
		render := tui.NewRenderer()

		assistant := intake.New(intake.WithScript(scr))
		ctx := context.Background()

		turn, err := assistant.StartInterview(ctx, specialty)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(render(turn.Prompt))

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				_ = assistant.End(ctx, turn.Session.ID, "simulation aborted")
				fmt.Println()
				return
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
			if input == "exit" || input == "quit" {
				_ = assistant.End(ctx, turn.Session.ID, "simulation aborted")
				fmt.Println("Bye!")
				return
			}

			turn, err = assistant.Answer(ctx, turn.Session.ID, input)
			if err != nil {
				if errors.Is(err, domain.ErrSessionTerminal) {
					return
				}
				fmt.Printf("Error: %v\n", err)
				continue
			}

			for _, ev := range turn.Events {
				if ev.Type == domain.EventStaffAlert {
					fmt.Print(render("**Staff alert:** " + ev.Reason))
				}
			}
			fmt.Print(render(turn.Prompt))

			if turn.Session.Terminal() {
				printRecord(render, turn.Session)
				return
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("specialty", "", "Specialty branch to start at (e.g. respiratory)")
}

func printRecord(render func(string) string, sess *domain.Session) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Interview %s\n\nStatus: **%s**\n\n", sess.ID, sess.Status))
	if sess.Record.Len() == 0 {
		sb.WriteString("No fields collected.\n")
	} else {
		sb.WriteString("| Field | Value |\n|-------|-------|\n")
		for _, field := range sess.Record.Fields() {
			value, _ := sess.Record.Get(field)
			sb.WriteString(fmt.Sprintf("| %s | %v |\n", field, value))
		}
	}
	fmt.Print(render(sb.String()))
}
