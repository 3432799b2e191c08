package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"intellidoc/internal/api"
	"intellidoc/internal/rag"
)

// withApp wires the components, runs fn and closes them.
func (c *cli) withApp(cmd *cobra.Command, withGenerator bool, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, c.cfg, withGenerator)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, true, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return api.NewServer(c.cfg.Server, a.service, a.rag).Run(ctx, c.cfg.Server.Addr)
			})
		},
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, chunk and index documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app) error {
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					res, err := a.service.Ingest(ctx, filepath.Base(path), data)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", res.Filename, res.NumChunks)
				}
				return nil
			})
		},
	}
}

func (c *cli) askCmd() *cobra.Command {
	var (
		k      int
		source string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, true, func(ctx context.Context, a *app) error {
				ans, err := a.rag.Ask(ctx, strings.Join(args, " "), rag.Options{K: k, Source: source})
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, ans)
				}
				fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
				if len(ans.Sources) > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
					fmt.Fprintln(cmd.OutOrStdout(), "Sources:")
					for _, s := range ans.Sources {
						fmt.Fprintf(cmd.OutOrStdout(), "  [%s, chunk %s]\n", s["source"], s["chunk"])
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of passages to answer from (default from config)")
	cmd.Flags().StringVar(&source, "source", "", "restrict retrieval to one source file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer as JSON")
	return cmd
}

func (c *cli) checkCmd() *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Run the legal clause check and risk score on a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				res, err := a.service.LegalCheck(ctx, filepath.Base(args[0]), docType, data)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type, e.g. loan_agreement or nda")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func (c *cli) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <file1> <file2>",
		Short: "Summarise the differences between two documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, true, func(ctx context.Context, a *app) error {
				texts := make([]string, 2)
				for i, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					docs, err := a.parser.Extract(ctx, filepath.Base(path), data)
					if err != nil {
						return err
					}
					parts := make([]string, len(docs))
					for j, d := range docs {
						parts[j] = d.Content
					}
					texts[i] = strings.Join(parts, "\n\n")
				}
				out, err := a.rag.Compare(ctx, texts[0], texts[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func (c *cli) sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List indexed source files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app) error {
				st, err := a.service.Status(ctx)
				if err != nil {
					return err
				}
				sources, err := a.service.Sources(ctx)
				if err != nil {
					return err
				}
				if len(sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sources indexed.")
					return nil
				}
				for _, s := range sources {
					fmt.Fprintln(cmd.OutOrStdout(), s)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d sources, %d chunks\n", st.IndexedDocs, st.IndexedChunks)
				return nil
			})
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <source>",
		Short: "Remove a source from the index and the upload registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app) error {
				res, err := a.service.DeleteSource(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s: %d chunks, %d files\n", res.Source, res.RemovedChunks, res.RemovedFiles)
				return nil
			})
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export the index to a file, encrypted with storage.encryption_key when set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app) error {
				if err := a.service.Export(ctx, args[0], c.cfg.Storage.EncryptionKey); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add the entries of an exported index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app) error {
				n, err := a.service.Import(ctx, args[0], c.cfg.Storage.EncryptionKey)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d chunks\n", n)
				return nil
			})
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
