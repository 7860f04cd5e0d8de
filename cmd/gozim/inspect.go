package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/gozim/pkg/zim"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print header, entry, and cluster counts for a ZIM archive",
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("uuid:          %x\n", a.UUID())
	fmt.Printf("entry count:   %d\n", a.EntryCount())
	fmt.Printf("cluster count: %d\n", a.ClusterCount())

	if main, err := a.MainPage(); err == nil {
		fmt.Printf("main page:     %s\n", main.FullUrl())
	}
	if title, err := a.Metadata("Title"); err == nil {
		fmt.Printf("title:         %s\n", title)
	}
	if lang, err := a.Metadata("Language"); err == nil {
		fmt.Printf("language:      %s\n", lang)
	}
	return nil
}
