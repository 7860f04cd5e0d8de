package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var zimPath string

var rootCmd = &cobra.Command{
	Use:   "gozim",
	Short: "gozim - inspect, extract from, verify, and build ZIM archives",
	Long: `gozim is a command-line tool for working with ZIM archives, the
binary container format used to distribute offline copies of Wikipedia
and similar web corpora.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&zimPath, "zim", os.Getenv("GOZIM_FILE"), "path to the ZIM archive (env GOZIM_FILE)")
}

func requireZimPath() error {
	if zimPath == "" {
		return fmt.Errorf("no archive given: pass --zim or set GOZIM_FILE")
	}
	return nil
}
