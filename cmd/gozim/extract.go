package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/gozim/pkg/zim"
)

var extractOut string

var extractCmd = &cobra.Command{
	Use:   "extract <full-url>",
	Short: "Write an entry's resolved content to stdout or --out",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := requireZimPath(); err != nil {
		return err
	}
	src, err := zim.OpenFile(zimPath, false)
	if err != nil {
		return err
	}
	defer src.Close()

	a, err := zim.Open(src, 0, zim.NewPolicy())
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.GetEntryByFullUrl(args[0])
	if err != nil {
		return err
	}
	e, err = e.Resolve()
	if err != nil {
		return err
	}
	data, err := e.Data()
	if err != nil {
		return err
	}

	if extractOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(extractOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", extractOut, err)
	}
	return nil
}
