package main

import (
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/pkg/formatting"
	"github.com/JaimeStill/arbiter/pkg/storage"
)

var artifactsFlags struct {
	prefix     string
	marker     string
	maxResults int
	download   bool
}

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Show trust tier boundaries",
	RunE:  runTiers,
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts [key]",
	Short: "List action artifacts, or show one by key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArtifacts,
}

func init() {
	f := artifactsCmd.Flags()
	f.StringVar(&artifactsFlags.prefix, "prefix", "", "Key prefix to list under")
	f.StringVar(&artifactsFlags.marker, "marker", "", "Continuation marker from a previous page")
	f.IntVar(&artifactsFlags.maxResults, "max-results", 0, "Page size (server default when 0)")
	f.BoolVar(&artifactsFlags.download, "download", false, "Write the artifact body to stdout")
}

func runTiers(cmd *cobra.Command, _ []string) error {
	var bounds []trust.Boundary
	if err := newClientFromFlags().do(cmd.Context(), "GET", "/trust/tiers", nil, nil, &bounds); err != nil {
		return err
	}
	if rootFlags.json {
		return printJSON(cmd.OutOrStdout(), bounds)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tTHRESHOLD")
	for _, b := range bounds {
		fmt.Fprintf(tw, "%s\t%g\n", b.Tier, b.Threshold)
	}
	return tw.Flush()
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	c := newClientFromFlags()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		key := args[0]
		if artifactsFlags.download {
			return c.do(cmd.Context(), "GET", "/artifacts/download/"+key, nil, nil, out)
		}
		var meta storage.BlobMeta
		if err := c.do(cmd.Context(), "GET", "/artifacts/"+key, nil, nil, &meta); err != nil {
			return err
		}
		return printJSON(out, meta)
	}

	q := url.Values{}
	if artifactsFlags.prefix != "" {
		q.Set("prefix", artifactsFlags.prefix)
	}
	if artifactsFlags.marker != "" {
		q.Set("marker", artifactsFlags.marker)
	}
	if artifactsFlags.maxResults > 0 {
		q.Set("max_results", strconv.Itoa(artifactsFlags.maxResults))
	}

	var list storage.BlobList
	if err := c.do(cmd.Context(), "GET", "/artifacts", q, nil, &list); err != nil {
		return err
	}
	if rootFlags.json {
		return printJSON(out, list)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tSIZE\tMODIFIED")
	for _, b := range list.Blobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Key, b.ContentType, formatting.FormatBytes(b.ContentLength, 1), b.LastModified.Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if list.NextMarker != "" {
		fmt.Fprintf(out, "more: --marker=%s\n", list.NextMarker)
	}
	return nil
}
