package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/strata/internal/schema"
	"github.com/mesh-intelligence/strata/pkg/strata"
)

// Version is the CLI version string.
const Version = "v0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("strata " + Version)
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the schema catalog",
		Long:  "Create the meta tables (schema_catalog, schema_versions) in the configured database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *strata.Store) error {
				fmt.Println("catalog initialized")
				return nil
			})
		},
	}
}

func newSchemaCmd() *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage schemas",
	}
	schemaCmd.AddCommand(&cobra.Command{
		Use:   "add <file>",
		Short: "Declare a schema from a JSON-Schema file",
		Long: `Declare a schema version. The document is copied into the data
directory so later invocations reload it into the catalog.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withStoreDir(func(store *strata.Store, dataDir string) error {
				if err := store.AddSchema(source); err != nil {
					return fmt.Errorf("add schema: %w", err)
				}
				if err := saveSchemaDocument(dataDir, source); err != nil {
					return err
				}
				fmt.Println("schema added")
				return nil
			})
		},
	})
	schemaCmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Drop a schema from the catalog (its table is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStoreDir(func(store *strata.Store, dataDir string) error {
				if err := store.RemoveSchema(args[0]); err != nil {
					return err
				}
				if err := removeSchemaDocuments(dataDir, args[0]); err != nil {
					return err
				}
				fmt.Println("schema removed")
				return nil
			})
		},
	})
	schemaCmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Resolve and print the active version of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *strata.Store) error {
				sc, err := store.GetSchema(args[0])
				if err != nil {
					return err
				}
				if flagJSON {
					fmt.Println(sc.SourceJSON)
					return nil
				}
				fmt.Printf("%s version %d (%d properties)\n", sc.Name, sc.Version, len(sc.Properties))
				return nil
			})
		},
	})
	return schemaCmd
}

// writeCmd builds insert/update/delete commands, which share the same
// shape: a schema name and a JSON payload (inline or @file).
func writeCmd(use, short string, run func(store *strata.Store, name string, payload []byte) (int64, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args[1])
			if err != nil {
				return err
			}
			return withStore(func(store *strata.Store) error {
				n, err := run(store, args[0], payload)
				if err != nil {
					return err
				}
				if flagJSON {
					out, _ := json.Marshal(map[string]int64{"affected": n})
					fmt.Println(string(out))
					return nil
				}
				fmt.Printf("%d row(s) affected\n", n)
				return nil
			})
		},
	}
}

func newInsertCmd() *cobra.Command {
	return writeCmd("insert <name> <json|@file>", "Insert or upsert JSON rows",
		func(store *strata.Store, name string, payload []byte) (int64, error) {
			return store.Insert(name, payload, "")
		})
}

func newUpdateCmd() *cobra.Command {
	return writeCmd("update <name> <json|@file>", "Update JSON rows by primary key",
		func(store *strata.Store, name string, payload []byte) (int64, error) {
			return store.Update(name, payload, "")
		})
}

func newDeleteCmd() *cobra.Command {
	return writeCmd("delete <name> <json|@file>", "Delete rows by primary key",
		func(store *strata.Store, name string, payload []byte) (int64, error) {
			return store.Delete(name, payload, "")
		})
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [param...]",
		Short: "Execute a raw parameterized statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]any, 0, len(args)-1)
			for _, p := range args[1:] {
				params = append(params, p)
			}
			return withStore(func(store *strata.Store) error {
				n, err := store.ExecDML(args[0], params)
				if err != nil {
					return err
				}
				if flagJSON {
					out, _ := json.Marshal(map[string]int64{"affected": n})
					fmt.Println(string(out))
					return nil
				}
				fmt.Printf("%d row(s) affected\n", n)
				return nil
			})
		},
	}
}

// readPayload accepts inline JSON or @path-to-file.
func readPayload(arg string) ([]byte, error) {
	if len(arg) > 0 && arg[0] == '@' {
		return os.ReadFile(arg[1:])
	}
	return []byte(arg), nil
}

// withStore opens the configured store with the catalog initialized and
// previously declared schemas reloaded, runs fn, and closes it.
func withStore(fn func(store *strata.Store) error) error {
	return withStoreDir(func(store *strata.Store, dataDir string) error {
		return fn(store)
	})
}

func withStoreDir(fn func(store *strata.Store, dataDir string) error) error {
	cfg, dataDir, err := engineConfig()
	if err != nil {
		return err
	}
	store, err := strata.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.InitCatalog(); err != nil {
		return err
	}
	if err := loadSchemaDocuments(store, dataDir); err != nil {
		return err
	}
	return fn(store, dataDir)
}

// saveSchemaDocument copies a declared schema into
// <data-dir>/schemas/<name>.v<version>.json for reload on the next run.
func saveSchemaDocument(dataDir string, source []byte) error {
	sc, err := schema.Load(source)
	if err != nil {
		return err
	}
	dir := filepath.Join(dataDir, "schemas")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	// Zero-padded so lexical directory order matches version order.
	name := fmt.Sprintf("%s.v%04d.json", sc.Name, sc.Version)
	return os.WriteFile(filepath.Join(dir, name), source, 0o644)
}

// removeSchemaDocuments deletes the saved documents for a schema so it
// is not re-declared on the next run.
func removeSchemaDocuments(dataDir, name string) error {
	matches, err := filepath.Glob(filepath.Join(dataDir, "schemas", name+".v*.json"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// loadSchemaDocuments re-declares every schema document found in the
// data directory, in lexical order so versions load ascending.
func loadSchemaDocuments(store *strata.Store, dataDir string) error {
	dir := filepath.Join(dataDir, "schemas")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		source, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := store.AddSchema(source); err != nil {
			return fmt.Errorf("reload %s: %w", entry.Name(), err)
		}
	}
	return nil
}
