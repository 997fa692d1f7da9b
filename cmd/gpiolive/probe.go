package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/gpiolive"
)

// newProbeCmd reads every pin once and prints the result.
func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Read every pin once and print the levels",
		Long: `Read every pin of the selected profile once, without serving.

By default a table is printed. With --json the same document the server
returns from /data is printed instead.

Example:
  gpiolive probe --source sim
  gpiolive probe --source sysfs --json`,
		RunE: runProbe,
	}

	addSourceFlags(cmd)
	cmd.Flags().Bool("json", false, "print the /data snapshot document")
	return cmd
}

func runProbe(cmd *cobra.Command, args []string) error {
	v, err := newSettings(cmd)
	if err != nil {
		return err
	}

	logger, closer, err := newLogger(v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	b, err := loadBoard(v)
	if err != nil {
		return fmt.Errorf("failed to load board: %w", err)
	}
	defer b.close()

	opts := append(b.appOptions(v), gpiolive.WithLogger(logger))
	app, err := gpiolive.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create gpiolive: %w", err)
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		body, err := app.Snapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to build snapshot: %w", err)
		}
		_, err = fmt.Fprintf(out, "%s\n", body)
		return err
	}

	return printStates(out, app.Read(cmd.Context()))
}

func printStates(w io.Writer, states []gpiolive.ChannelState) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PIN\tGPIO\tLEVEL\tDIGITAL\tVOLTAGE")
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			st.Channel.Label(),
			st.Channel.ID(),
			st.Level,
			formatDigital(st.Sample.Digital),
			formatVoltage(st.Sample.Voltage),
		)
	}
	return tw.Flush()
}

func formatDigital(d *int) string {
	if d == nil {
		return "-"
	}
	return strconv.Itoa(*d)
}

func formatVoltage(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 3, 64) + " V"
}
