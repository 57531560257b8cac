package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chain-keeper/pkg/chain"
	"chain-keeper/pkg/checksum"
	"chain-keeper/pkg/loader"
	"chain-keeper/pkg/preset"
)

func readDocument(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// describeLoadError adds the error kind and element to a load failure.
func describeLoadError(err error) error {
	if el := loader.Element(err); el != "" {
		return fmt.Errorf("%s (element %s): %w", loader.Kind(err), el, err)
	}
	return fmt.Errorf("%s: %w", loader.Kind(err), err)
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load FILE",
		Short: "Load a document and print the resulting graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readDocument(args[0])
			if err != nil {
				return err
			}
			res, err := loader.New(nil, a.log).Load(raw)
			if err != nil {
				return describeLoadError(err)
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", w.Kind, w.Message)
			}
			nodes, edges := res.Graph.Len()
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"from":     res.From,
				"revision": res.Document.Revision(),
				"checksum": res.Checksum,
				"applied":  res.Applied,
				"nodes":    nodes,
				"edges":    edges,
				"content":  res.Graph.Content(),
			})
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "migrate FILE",
		Short: "Migrate a document to the current schema revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readDocument(args[0])
			if err != nil {
				return err
			}
			res, err := loader.New(nil, a.log).Load(raw)
			if err != nil {
				return describeLoadError(err)
			}
			data, err := chain.Encode(res.Document)
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "migrated revision %d -> %d (%d steps) to %s\n",
				res.From, res.Document.Revision(), len(res.Applied), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the migrated document to this file")
	return cmd
}

func (a *app) checksumCmd() *cobra.Command {
	var seal bool
	cmd := &cobra.Command{
		Use:   "checksum FILE",
		Short: "Compute and verify a document's content checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readDocument(args[0])
			if err != nil {
				return err
			}
			if seal {
				l := loader.New(nil, a.log)
				res, err := l.Load(raw)
				if err != nil {
					return describeLoadError(err)
				}
				doc, err := l.Seal(res.Graph, a.cfg.AppVersion, time.Now())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), doc)
			}

			doc, err := chain.Decode(raw)
			if err != nil {
				return describeLoadError(err)
			}
			sum, err := checksum.Compute(doc.Content)
			if err != nil {
				return err
			}
			status, err := checksum.Verify(doc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"checksum": sum, "status": status})
		},
	}
	cmd.Flags().BoolVar(&seal, "seal", false, "print the document migrated and sealed with a fresh checksum")
	return cmd
}

func (a *app) presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the bundled presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := preset.LoadBundled(loader.New(nil, a.log), a.cfg.PresetWorkers)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range c.Entries() {
				nodes, edges := e.Graph.Len()
				fmt.Fprintf(out, "%-40s rev %d  %-8s %3d nodes %3d edges  %s\n",
					e.Name, e.Revision, e.Checksum, nodes, edges, e.Author)
			}
			for _, f := range c.Failures() {
				fmt.Fprintf(cmd.ErrOrStderr(), "excluded: %v\n", f)
			}
			return nil
		},
	}
}
