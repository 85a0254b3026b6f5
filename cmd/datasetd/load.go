package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/dataops/dataset"
)

func newLoadCmd(opts *globalOptions) *cobra.Command {
	var (
		file string
		req  dataset.Request
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a dataset and print its key and metadata",
		Example: `  datasetd load --source sales.orders --dimension region --metric revenue --filter channel=web
  datasetd load --file request.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file != "" {
				fromFile, err := readRequest(file)
				if err != nil {
					return err
				}
				req = mergeRequests(fromFile, req)
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				res, err := a.cache.Load(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML request file; flags add to it")
	cmd.Flags().StringSliceVar(&req.Sources, "source", nil, "source table (repeatable)")
	cmd.Flags().StringSliceVar(&req.Dimensions, "dimension", nil, "dimension column (repeatable)")
	cmd.Flags().StringSliceVar(&req.Metrics, "metric", nil, "metric column (repeatable)")
	cmd.Flags().StringToStringVar(&req.Filters, "filter", nil, "equality filter column=value (repeatable)")
	return cmd
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	var data bool

	cmd := &cobra.Command{
		Use:   "show KEY",
		Short: "Print a cached dataset's metadata, or its rows with --data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				if data {
					table, err := a.cache.Payload(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), table)
				}
				md, err := a.cache.Metadata(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), md)
			})
		},
	}

	cmd.Flags().BoolVar(&data, "data", false, "print the rows instead of the metadata")
	return cmd
}

func newExtendCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extend KEY",
		Short: "Reset a cached dataset's lifetime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				ok, err := a.cache.Extend(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return dataset.ErrDatasetNotFound
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "extended %s by %s\n", args[0], a.cfg.Cache.TTL)
				return err
			})
		},
	}
}

// withApp runs fn against a fully wired app and releases it afterwards.
func withApp(ctx context.Context, opts *globalOptions, fn func(context.Context, *app) error) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.Background()) }()
	return fn(ctx, a)
}

func readRequest(path string) (dataset.Request, error) {
	var req dataset.Request
	f, err := os.Open(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return req, err
	}
	defer f.Close() //nolint:errcheck

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	return req, nil
}

// mergeRequests adds the flag values in extra to base. Flag filters win.
func mergeRequests(base, extra dataset.Request) dataset.Request {
	base.Sources = append(base.Sources, extra.Sources...)
	base.Dimensions = append(base.Dimensions, extra.Dimensions...)
	base.Metrics = append(base.Metrics, extra.Metrics...)
	if len(extra.Filters) > 0 && base.Filters == nil {
		base.Filters = make(map[string]string, len(extra.Filters))
	}
	for k, v := range extra.Filters {
		base.Filters[k] = v
	}
	return base
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
