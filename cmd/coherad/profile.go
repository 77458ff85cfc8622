package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/erasure"
	"github.com/ktiyab/coheara/internal/profilestore"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage local profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name> <password>",
	Short: "Create a new profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		info, phrase, err := store.Create(args[0], args[1], nil, nil)
		if err != nil {
			return err
		}
		defer phrase.Close()
		fmt.Printf("created profile %s (%s)\n", info.Name, info.ID)
		fmt.Printf("recovery phrase (write this down, shown only once): %s\n", phrase.String())
		return nil
	},
}

var profileOpenCmd = &cobra.Command{
	Use:   "open <profile-id> <password>",
	Short: "Verify a profile opens with the given password",
	Args:  cobra.ExactArgs(2),
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
		fmt.Printf("profile %s opened successfully\n", opened.Info.Name)
		return nil
	},
}

var profileRotatePasswordCmd = &cobra.Command{
	Use:   "rotate-password <profile-id> <old-password> <new-password>",
	Short: "Change a profile's password",
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
		if err := store.ChangePassword(id, args[1], args[2]); err != nil {
			return err
		}
		fmt.Println("password changed")
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <profile-id> <confirmation-text> <password>",
	Short: "Permanently erase a profile and its data",
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
		result, err := eraseProfile(store, id, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("erased profile %s: %d files, %d bytes, key zeroed=%v\n",
			result.ProfileName, result.FilesDeleted, result.BytesErased, result.KeyZeroed)
		return nil
	},
}

func eraseProfile(store *profilestore.Store, id uuid.UUID, confirmationText, password string) (*erasure.Result, error) {
	return erasure.Erase(store, erasure.Request{
		ProfileID:        id,
		ConfirmationText: confirmationText,
		Password:         password,
	})
}

func openStore(cmd *cobra.Command) (*profilestore.Store, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return profilestore.New(cfg.ProfilesDir)
}

func init() {
	profileCmd.AddCommand(profileCreateCmd, profileOpenCmd, profileRotatePasswordCmd, profileDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}
