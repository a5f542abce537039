package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"firmforge/internal/board"
)

// boardsCmd lists the supported target boards
var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List supported target boards",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(board.Builtin().Table())
		return nil
	},
}
