package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solatis/schemamap/internal/core/auth"
	"github.com/solatis/schemamap/internal/core/config"
	"github.com/solatis/schemamap/internal/core/db"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("name", "", "key name")
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret to bind the key to (default: first configured)")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
}

func openStore(cmd *cobra.Command) (*db.Store, func() error, error) {
	database, err := openDatabase(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := requireMigrations(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	store, err := db.NewStore(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return store, database.Close, nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	secretID, _ := cmd.Flags().GetString("secret-id")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set SM_HMAC_SECRET environment variable)")
	}
	if secretID == "" {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		secretID = ids[0]
	}
	secret, ok := secrets[secretID]
	if !ok {
		return fmt.Errorf("secret id %s is not configured", secretID)
	}

	store, closeDB, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	key, hash, err := auth.GenerateAPIKey(secretID, secret)
	if err != nil {
		return err
	}
	id, err := store.CreateAPIKey(context.Background(), name, hash)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "created API key %s (%s); it is shown only once\n", id, name)
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.RevokeAPIKey(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "revoked API key %s\n", args[0])
	return nil
}
