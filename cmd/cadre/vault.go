package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ksofianos/cadre/internal/config"
	"github.com/ksofianos/cadre/internal/store"
	"github.com/ksofianos/cadre/internal/vault"
)

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	passphrase := cfg.Vault.Passphrase
	if passphrase == "" {
		return fmt.Errorf("vault passphrase not set (CADRE_VAULT_PASSPHRASE or vault.passphrase)")
	}
	v := vault.New(passphrase)

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "list":
		return vaultList(db)
	case "set":
		return vaultSet(db, v, args[1:])
	case "get":
		return vaultGet(db, v, args[1:])
	case "delete":
		return vaultDelete(db, args[1:])
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: cadre vault <command>

Commands:
  list                       List all secrets (metadata only)
  set <name> --value <str>   Store a string secret
  set <name> --file <path>   Store a secret from a file
  get <name>                 Retrieve and decrypt a secret
  delete <name>              Delete a secret

Environment:
  CADRE_VAULT_PASSPHRASE     Encryption passphrase (or vault.passphrase in config)
`)
}

func vaultList(db *store.Store) error {
	secrets, err := db.ListSecrets()
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		fmt.Println("No secrets stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCREATED\tUPDATED")
	for _, s := range secrets {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name,
			s.CreatedAt.Format("2006-01-02 15:04"), s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func vaultSet(db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: cadre vault set <name> --value <string> | --file <path>")
	}

	name := args[0]
	var value []byte

	switch args[1] {
	case "--value":
		value = []byte(args[2])
	case "--file":
		data, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		value = data
	default:
		return fmt.Errorf("expected --value or --file, got %s", args[1])
	}

	if err := v.Store(db, name, value); err != nil {
		return err
	}
	fmt.Printf("Secret %q saved\n", name)
	return nil
}

func vaultGet(db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cadre vault get <name>")
	}

	plaintext, err := v.Reveal(db, args[0])
	if err != nil {
		return err
	}

	fmt.Print(string(plaintext))
	if len(plaintext) > 0 && plaintext[len(plaintext)-1] != '\n' {
		fmt.Println()
	}
	return nil
}

func vaultDelete(db *store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cadre vault delete <name>")
	}
	if err := db.DeleteSecret(args[0]); err != nil {
		return err
	}
	fmt.Printf("Secret %q deleted\n", args[0])
	return nil
}
