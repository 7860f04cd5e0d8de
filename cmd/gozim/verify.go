package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/gozim/pkg/zim"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Open a ZIM archive with checksum verification enabled",
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	if err := requireZimPath(); err != nil {
		return err
	}
	src, err := zim.OpenFile(zimPath, false)
	if err != nil {
		return err
	}
	defer src.Close()

	policy := zim.NewPolicy(zim.WithVerifyChecksumOnOpen(true))
	a, err := zim.Open(src, 0, policy)
	if err != nil {
		return fmt.Errorf("checksum verification failed: %w", err)
	}
	defer a.Close()

	fmt.Println("checksum OK")
	return nil
}
