package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ktiyab/coheara/internal/backup"
	"github.com/ktiyab/coheara/internal/cryptoutil"
	"github.com/ktiyab/coheara/internal/db"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, preview, and restore encrypted backup archives",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create <profile-id> <password> <output-path>",
	Short: "Create an encrypted backup of a profile",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid profile id: %w", err)
		}

		opened, err := store.Open(id, args[1])
		if err != nil {
			return err
		}
		defer opened.MasterKey.Close()

		handle, err := db.Open(opened.DBPath, opened.MasterKey)
		if err != nil {
			return err
		}
		docCount, err := handle.CountDocuments()
		handle.Close()
		if err != nil {
			return err
		}

		salt, err := cryptoutil.GenerateSalt()
		if err != nil {
			return err
		}
		backupKey, err := cryptoutil.DerivePasswordKey(args[1], salt)
		if err != nil {
			return err
		}
		defer backupKey.Close()

		result, err := backup.Create(backup.CreateRequest{
			ProfileDir:    store.ProfileDir(id),
			ProfileName:   opened.Info.Name,
			Salt:          salt,
			DocumentCount: docCount,
			Key:           backupKey,
		}, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d documents, %d bytes)\n", result.BackupPath, result.TotalDocs, result.TotalBytes)
		return nil
	},
}

var backupPreviewCmd = &cobra.Command{
	Use:   "preview <backup-path>",
	Short: "Inspect a backup archive without decrypting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, err := backup.PreviewFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("profile: %s\ncreated: %s\ndocuments: %d\ncompatible: %v\n",
			preview.Metadata.ProfileName, preview.Metadata.CreatedAt, preview.Metadata.DocumentCount, preview.Compatible)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-path> <password> <target-dir>",
	Short: "Restore a backup archive into a target profile directory",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := backup.Restore(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("restored %d documents (%d bytes)\n", result.DocumentsRestored, result.TotalSizeBytes)
		for _, w := range result.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd, backupPreviewCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
