package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/gozim/internal/search"
	"github.com/bevelgacom/gozim/pkg/zim"
)

var indexOutputPath string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build a Bluge search index over an archive's content entries",
	Long: `Build a persistent Bluge search index over a ZIM archive.
The index is stored next to the archive with a .bluge extension by default.`,
	Example: `  gozim index --zim ./data/archive.zim
  gozim index --zim ./data/archive.zim -o ./data/archive.bluge`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexOutputPath, "output", "o", "", "output path for the index (default: archive path with .bluge extension)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := requireZimPath(); err != nil {
		return err
	}

	outputPath := indexOutputPath
	if outputPath == "" {
		outputPath = search.DefaultIndexPath(zimPath)
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

	fmt.Printf("building index for %s -> %s\n", zimPath, outputPath)
	start := time.Now()

	if err := search.Build(a, outputPath); err != nil {
		return err
	}

	fmt.Printf("index built in %s\n", time.Since(start).Round(time.Second))
	return nil
}
