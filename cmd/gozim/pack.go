package main

import (
	"crypto/rand"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/gozim/pkg/zim"
)

var (
	packOut   string
	packTitle string
)

var packCmd = &cobra.Command{
	Use:   "pack <directory>",
	Short: "Build a ZIM archive from a directory of files, one entry per file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPack,
}

func init() {
	packCmd.Flags().StringVarP(&packOut, "out", "o", "archive.zim", "output archive path")
	packCmd.Flags().StringVar(&packTitle, "title", "", "archive title, stored under M/Title")
	rootCmd.AddCommand(packCmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	root := args[0]

	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return fmt.Errorf("generate uuid: %w", err)
	}

	dst, err := zim.CreateFile(packOut)
	if err != nil {
		return err
	}
	defer dst.Close()

	w := zim.NewWriter(dst, zim.NewPolicy(), uuid)

	if packTitle != "" {
		if err := w.AddEntry('M', "Title", "", "text/plain", []byte(packTitle)); err != nil {
			return err
		}
	}

	count := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		mt := mime.TypeByExtension(filepath.Ext(path))
		if mt == "" {
			mt = "application/octet-stream"
		}
		if idx := strings.Index(mt, ";"); idx != -1 {
			mt = mt[:idx]
		}
		title := filepath.Base(rel)
		if err := w.AddEntry(zim.ContentNamespace, rel, title, mt, data); err != nil {
			return fmt.Errorf("add %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d entries\n", packOut, count)
	return nil
}
