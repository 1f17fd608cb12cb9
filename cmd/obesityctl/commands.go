package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"obesityserve/ml"
)

type options struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "obesityctl",
		Short: "Client for the obesity level prediction service",
		Long: `obesityctl checks a running prediction service, sends records to it and
encodes records offline exactly as the service would.

Examples:
  obesityctl health
  obesityctl predict                       # posts the built-in sample record
  obesityctl predict person.json --url http://10.0.0.5:5000
  obesityctl encode person.json --model models/obesity_model.json
  obesityctl classes`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.client == nil {
				opts.client = &http.Client{Timeout: opts.timeout}
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:5000", "base URL of the prediction service")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP request timeout")

	root.AddCommand(
		newHealthCmd(opts),
		newPredictCmd(opts),
		newEncodeCmd(),
		newClassesCmd(),
	)
	return root
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the service health and loaded model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := opts.do(cmd.Context(), http.MethodGet, "/health", nil)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), body); err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("service unhealthy: HTTP %d", status)
			}
			return nil
		},
	}
}

func newPredictCmd(opts *options) *cobra.Command {
	var describe bool
	cmd := &cobra.Command{
		Use:   "predict [record.json]",
		Short: "Send a record to /predict (the built-in sample when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readRecord(args)
			if err != nil {
				return err
			}
			status, body, err := opts.do(cmd.Context(), http.MethodPost, "/predict", payload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printJSON(out, body); err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("prediction rejected: HTTP %d", status)
			}
			if describe {
				var p ml.Prediction
				if err := json.Unmarshal(body, &p); err != nil {
					return fmt.Errorf("decode prediction: %w", err)
				}
				fmt.Fprintf(out, "\n%s (confidence %.1f%%)\n", ml.Describe(p.PredictedClass), p.Confidence*100)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&describe, "describe", true, "print a human description of the predicted class")
	return cmd
}

func newEncodeCmd() *cobra.Command {
	var (
		modelPath string
		table     bool
	)
	cmd := &cobra.Command{
		Use:   "encode [record.json]",
		Short: "Validate and encode a record offline against a model artifact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readRecord(args)
			if err != nil {
				return err
			}
			rec, err := ml.ParseRecord(payload)
			if err != nil {
				return err
			}

			names := ml.CanonicalFeatureNames()
			encoder := ml.DefaultEncoder()
			if modelPath != "" {
				artifact, err := ml.LoadArtifact(modelPath)
				if err != nil {
					return err
				}
				names = artifact.FeatureNames()
				encoder = artifact.Encoder()
			}
			vector, err := encoder.Encode(rec, names)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if table {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for i, name := range vector.Names() {
					fmt.Fprintf(tw, "%d\t%s\t%g\n", i, name, vector.At(i))
				}
				return tw.Flush()
			}
			data, err := vector.MarshalJSON()
			if err != nil {
				return err
			}
			return printJSON(out, data)
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "model artifact whose feature list and one-hot order to use")
	cmd.Flags().BoolVar(&table, "table", false, "print one feature per line instead of JSON")
	return cmd
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List the obesity levels the models predict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, label := range ml.ObesityLevels {
				fmt.Fprintf(tw, "%s\t%s\n", label, ml.Describe(label))
			}
			return tw.Flush()
		},
	}
}

func (o *options) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(o.baseURL, "/")+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func readRecord(args []string) ([]byte, error) {
	if len(args) == 0 {
		return json.Marshal(ml.SampleRecord().Input())
	}
	if args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

func printJSON(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, werr := w.Write(data)
		if werr != nil {
			return werr
		}
		return nil
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
