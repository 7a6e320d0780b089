package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jmorganca/subtok/api"
	"github.com/jmorganca/subtok/envconfig"
	"github.com/jmorganca/subtok/format"
	"github.com/jmorganca/subtok/progress"
	"github.com/jmorganca/subtok/server"
	"github.com/jmorganca/subtok/version"
)

func ServeHandler(cmd *cobra.Command, _ []string) error {
	host, err := envconfig.GetHost()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host.Host, host.Port))
	if err != nil {
		return err
	}

	return server.Serve(ln)
}

func TrainHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	corpus, err := cmd.Flags().GetString("corpus")
	if err != nil {
		return err
	}

	words := args[1:]
	if corpus == "" && len(words) == 0 {
		return errors.New("missing words to train on: pass words or -f FILE")
	}

	req := api.TrainRequest{Name: args[0], Words: words}
	if corpus != "" {
		// the server reads the corpus, so hand it an absolute path
		abs, err := filepath.Abs(corpus)
		if err != nil {
			return err
		}
		req.CorpusFile = abs
	}

	req.Options = map[string]any{}
	for flag, option := range map[string]string{
		"vocab-size": "vocab_size",
		"min-count":  "min_count",
		"parallel":   "parallel",
	} {
		if cmd.Flags().Changed(flag) {
			v, err := cmd.Flags().GetInt(flag)
			if err != nil {
				return err
			}
			req.Options[option] = v
		}
	}

	p := progress.NewProgress(os.Stderr)
	defer p.Stop()

	var status string
	var spinner *progress.Spinner
	var bar *progress.StepBar

	fn := func(resp api.TrainProgress) error {
		if resp.Total > 0 {
			if bar == nil {
				if spinner != nil {
					spinner.Stop()
				}

				bar = progress.NewStepBar("merging pairs", resp.Total)
				p.Add("merges", bar)
			}

			bar.Set(resp.VocabSize)
		} else if status != resp.Status {
			if spinner != nil {
				spinner.Stop()
			}

			status = resp.Status
			spinner = progress.NewSpinner(status)
			p.Add(status, spinner)
		}

		return nil
	}

	return client.Train(cmd.Context(), &req, fn)
}

func EncodeHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	lines := args[1:]
	if len(lines) == 0 {
		lines, err = readLines(os.Stdin)
		if err != nil {
			return err
		}
	}

	window, err := cmd.Flags().GetInt("window")
	if err != nil {
		return err
	}

	segmented, err := cmd.Flags().GetBool("segmented")
	if err != nil {
		return err
	}

	resp, err := client.Tokenize(cmd.Context(), &api.TokenizeRequest{
		Name:      args[0],
		Lines:     lines,
		Window:    window,
		Segmented: segmented,
	})
	if err != nil {
		return err
	}

	for _, row := range resp.Ids {
		fmt.Println(joinIDs(row))
	}

	return nil
}

func DecodeHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	var rows [][]int
	if len(args) > 1 {
		row, err := parseIDs(args[1:])
		if err != nil {
			return err
		}

		rows = append(rows, row)
	} else {
		lines, err := readLines(os.Stdin)
		if err != nil {
			return err
		}

		for _, line := range lines {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}

			row, err := parseIDs(fields)
			if err != nil {
				return err
			}

			rows = append(rows, row)
		}
	}

	resp, err := client.Detokenize(cmd.Context(), &api.DetokenizeRequest{Name: args[0], Ids: rows})
	if err != nil {
		return err
	}

	for _, symbols := range resp.Symbols {
		fmt.Println(strings.Join(symbols, " "))
	}

	return nil
}

func SegmentHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, word := range args[1:] {
		resp, err := client.Segment(cmd.Context(), &api.SegmentRequest{Name: args[0], Word: word})
		if err != nil {
			return err
		}

		fmt.Println(strings.Join(resp.Symbols, " "))
	}

	return nil
}

func ListHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.List(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string

	for _, c := range resp.Checkpoints {
		if len(args) == 0 || strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(args[0])) {
			data = append(data, []string{c.Name, format.HumanNumber(uint64(c.VocabSize)), format.HumanBytes(c.Size), format.HumanTime(c.ModifiedAt, "Never")})
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "VOCAB", "SIZE", "MODIFIED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func ShowHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Show(cmd.Context(), &api.ShowRequest{Name: args[0]})
	if err != nil {
		return err
	}

	return showInfo(resp, os.Stdout)
}

func showInfo(resp *api.ShowResponse, w io.Writer) error {
	tableRender := func(header string, rows func() [][]string) {
		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(rows())
		table.Render()

		fmt.Fprintln(w)
	}

	tableRender("Checkpoint", func() (rows [][]string) {
		rows = append(rows, []string{"", "name", resp.Name})
		rows = append(rows, []string{"", "vocab size", format.HumanNumber(uint64(resp.VocabSize))})
		rows = append(rows, []string{"", "words", format.HumanNumber(uint64(resp.Words))})
		rows = append(rows, []string{"", "marker", resp.Marker})
		rows = append(rows, []string{"", "size", format.HumanBytes(resp.Size)})
		rows = append(rows, []string{"", "modified", format.HumanTime(resp.ModifiedAt, "Never")})
		return
	})

	if len(resp.Merges) > 0 {
		tableRender("Merges", func() (rows [][]string) {
			for _, merge := range resp.Merges {
				rows = append(rows, []string{"", merge})
			}
			return
		})
	}

	return nil
}

func DeleteHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, name := range args {
		if err := client.Delete(cmd.Context(), &api.DeleteRequest{Name: name}); err != nil {
			return err
		}

		fmt.Printf("deleted '%s'\n", name)
	}

	return nil
}

func ConfigHandler(cmd *cobra.Command, _ []string) error {
	example, err := cmd.Flags().GetBool("example")
	if err != nil {
		return err
	}

	if example {
		fmt.Print(envconfig.GenerateExampleConfig())
		return nil
	}

	fmt.Println("Config file search paths:")
	for _, path := range envconfig.GetConfigPaths() {
		fmt.Printf("  %s\n", path)
	}

	return nil
}

func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running subtok instance")
	}

	if serverVersion != "" {
		fmt.Printf("subtok version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Printf("Warning: client version is %s\n", version.Version)
	}
}

func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	if err := client.Heartbeat(cmd.Context()); err != nil {
		if !strings.Contains(err.Error(), " refused") {
			return err
		}

		return errors.New("could not connect to a running subtok instance, try `subtok serve`")
	}

	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func joinIDs(ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(" ")
		}

		sb.WriteString(strconv.Itoa(id))
	}

	return sb.String()
}

func parseIDs(fields []string) ([]int, error) {
	ids := make([]int, len(fields))
	for i, field := range fields {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q", field)
		}

		ids[i] = id
	}

	return ids, nil
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "subtok",
		Short:         "Subword tokenizer server",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return nil
			}

			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start subtok",
		Args:    cobra.ExactArgs(0),
		RunE:    ServeHandler,
	}

	trainCmd := &cobra.Command{
		Use:     "train NAME [WORD...]",
		Short:   "Train a tokenizer checkpoint",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    TrainHandler,
	}

	trainCmd.Flags().StringP("corpus", "f", "", "Corpus file of whitespace-delimited words")
	trainCmd.Flags().Int("vocab-size", 0, "Stop merging at this vocabulary size (0 merges until no pair repeats)")
	trainCmd.Flags().Int("min-count", 0, "Drop words seen fewer than this many times")
	trainCmd.Flags().Int("parallel", 0, "Workers for pair counting (0 uses the server default)")

	encodeCmd := &cobra.Command{
		Use:     "encode NAME [TEXT...]",
		Short:   "Encode lines into token ids",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    EncodeHandler,
	}

	encodeCmd.Flags().Int("window", 0, "Exact width of every id row (0 uses the server default)")
	encodeCmd.Flags().Bool("segmented", false, "Treat input as already segmented symbols")

	decodeCmd := &cobra.Command{
		Use:     "decode NAME [ID...]",
		Short:   "Decode token ids back into symbols",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    DecodeHandler,
	}

	segmentCmd := &cobra.Command{
		Use:     "segment NAME WORD...",
		Short:   "Split words into learned subword symbols",
		Args:    cobra.MinimumNArgs(2),
		PreRunE: checkServerHeartbeat,
		RunE:    SegmentHandler,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List checkpoints",
		PreRunE: checkServerHeartbeat,
		RunE:    ListHandler,
	}

	showCmd := &cobra.Command{
		Use:     "show NAME",
		Short:   "Show information for a checkpoint",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ShowHandler,
	}

	deleteCmd := &cobra.Command{
		Use:     "rm NAME...",
		Aliases: []string{"remove"},
		Short:   "Remove one or more checkpoints",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    DeleteHandler,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show config file search paths",
		Args:  cobra.ExactArgs(0),
		RunE:  ConfigHandler,
	}

	configCmd.Flags().Bool("example", false, "Print an example config file")

	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["SUBTOK_HOST"]}
	for _, cmd := range []*cobra.Command{trainCmd, encodeCmd, decodeCmd, segmentCmd, listCmd, showCmd, deleteCmd, serveCmd} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["SUBTOK_DEBUG"],
				envVars["SUBTOK_HOST"],
				envVars["SUBTOK_HOME"],
				envVars["SUBTOK_NOPRUNE"],
				envVars["SUBTOK_NUM_PARALLEL"],
				envVars["SUBTOK_ORIGINS"],
				envVars["SUBTOK_WINDOW"],
			})
		case encodeCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["SUBTOK_HOST"], envVars["SUBTOK_WINDOW"]})
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		trainCmd,
		encodeCmd,
		decodeCmd,
		segmentCmd,
		listCmd,
		showCmd,
		deleteCmd,
		configCmd,
	)

	return rootCmd
}
