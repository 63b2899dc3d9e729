package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/agentdir/agentdir/pkg/agentcard"
	"github.com/agentdir/agentdir/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	registryURL string
	cfgFile     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentdir",
	Short: "agentdir registry CLI",
	Long: `agentdir is the command-line interface for the agentdir registry.

It registers agent cards, validates them, sends heartbeats, and searches
the directory.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.agentdir")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			registryURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agentdir/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "registry URL (default http://localhost:8080)")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadCard reads and validates a card JSON file.
func loadCard(path string) (*agentcard.Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read card file: %w", err)
	}
	return agentcard.Parse(data)
}

// ── register ─────────────────────────────────────────────────────────────────

var registerCmd = &cobra.Command{
	Use:   "register <card.json>",
	Short: "Register an agent card with the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		card, err := loadCard(args[0])
		if err != nil {
			return err
		}

		c := client.New(registryURL)
		result, err := c.Register(cmd.Context(), card)
		if err != nil {
			return err
		}

		fmt.Printf("registered: %s\n", result.ID)
		fmt.Printf("heartbeat token: %s\n", result.HeartbeatToken)
		fmt.Println("store this token now; the registry keeps only a hash and cannot show it again")
		for _, w := range result.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

// ── validate ─────────────────────────────────────────────────────────────────

var validateLocal bool

var validateCmd = &cobra.Command{
	Use:   "validate <card.json>",
	Short: "Validate an agent card without registering it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read card file: %w", err)
		}

		var result agentcard.ValidationResult
		if validateLocal {
			card, parseErr := agentcard.Parse(data)
			if parseErr != nil {
				result = agentcard.ValidationResult{Valid: false, Errors: []string{parseErr.Error()}}
			} else {
				result = agentcard.Check(card)
			}
		} else {
			card, parseErr := agentcard.Parse(data)
			if parseErr != nil {
				result = agentcard.ValidationResult{Valid: false, Errors: []string{parseErr.Error()}}
			} else {
				c := client.New(registryURL)
				remote, err := c.Validate(cmd.Context(), card)
				if err != nil {
					return err
				}
				result = *remote
			}
		}

		if result.Valid {
			fmt.Println("card is valid")
		} else {
			fmt.Println("card is INVALID")
		}
		for _, e := range result.Errors {
			fmt.Printf("error: %s\n", e)
		}
		for _, w := range result.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		if !result.Valid {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateLocal, "local", false, "validate locally without contacting the registry")
}

// ── heartbeat ────────────────────────────────────────────────────────────────

var (
	hbToken    string
	hbStatus   string
	hbLoad     float64
	hbMessage  string
	hbInterval time.Duration
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat <agent-id>",
	Short: "Send a heartbeat, or keep heartbeating with --every",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if hbToken == "" {
			hbToken = viper.GetString("heartbeat_token")
		}
		if hbToken == "" {
			return fmt.Errorf("heartbeat token required (--token or HEARTBEAT_TOKEN)")
		}

		req := client.HeartbeatRequest{Status: hbStatus, Message: hbMessage}
		if cmd.Flags().Changed("load") {
			req.Load = &hbLoad
		}

		c := client.New(registryURL)
		send := func(ctx context.Context) error {
			result, err := c.Heartbeat(ctx, id, hbToken, req)
			if err != nil {
				return err
			}
			fmt.Printf("%s heartbeat accepted: status=%s online=%v\n",
				time.Now().Format(time.RFC3339), result.Liveness.Status, result.Online)
			return nil
		}

		if err := send(cmd.Context()); err != nil {
			return err
		}
		if hbInterval <= 0 {
			return nil
		}

		// Keep heartbeating until interrupted. Send failures are reported
		// and retried on the next tick; the registry does not retry for us.
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		ticker := time.NewTicker(hbInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := send(cmd.Context()); err != nil {
					fmt.Fprintf(os.Stderr, "heartbeat failed: %v\n", err)
				}
			case <-quit:
				return nil
			}
		}
	},
}

func init() {
	heartbeatCmd.Flags().StringVar(&hbToken, "token", "", "heartbeat token issued at registration")
	heartbeatCmd.Flags().StringVar(&hbStatus, "status", "online", "reported status: online, offline, or busy")
	heartbeatCmd.Flags().Float64Var(&hbLoad, "load", 0, "current load in [0.0, 1.0]")
	heartbeatCmd.Flags().StringVar(&hbMessage, "message", "", "short status message (max 256 chars)")
	heartbeatCmd.Flags().DurationVar(&hbInterval, "every", 0, "keep sending heartbeats at this interval (e.g. 60s)")
}

// ── get / list / search ──────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get <agent-id>",
	Short: "Show one agent's card and liveness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(registryURL)
		agent, err := c.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("id:          %s\n", agent.ID)
		fmt.Printf("name:        %s\n", agent.Card.Name)
		fmt.Printf("url:         %s\n", agent.Card.URL)
		fmt.Printf("version:     %s\n", agent.Card.Version)
		fmt.Printf("status:      %s\n", agent.Liveness.Status)
		fmt.Printf("online:      %v\n", agent.Online)
		if agent.Liveness.Load != nil {
			fmt.Printf("load:        %.2f\n", *agent.Liveness.Load)
		}
		if agent.Liveness.Message != "" {
			fmt.Printf("message:     %s\n", agent.Liveness.Message)
		}
		if agent.Liveness.LastSeenAt != nil {
			fmt.Printf("last seen:   %s\n", agent.Liveness.LastSeenAt.Format(time.RFC3339))
		}
		for _, s := range agent.Card.Skills {
			fmt.Printf("skill:       %s (%s)\n", s.ID, s.Name)
		}
		return nil
	},
}

var (
	listStatus string
	listOnline bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(registryURL)
		agents, err := c.List(cmd.Context(), client.ListOptions{
			Status: listStatus,
			Online: listOnline,
		})
		if err != nil {
			return err
		}
		printAgents(agents)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by reported status")
	listCmd.Flags().BoolVar(&listOnline, "online", false, "only agents with a recent heartbeat")
}

var (
	searchSkill      string
	searchTag        string
	searchQ          string
	searchCapability string
	searchStatus     string
	searchOnline     bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search agents by skill, tag, text, or capability",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(registryURL)
		agents, err := c.Search(cmd.Context(), client.SearchOptions{
			Skill:      searchSkill,
			Tag:        searchTag,
			Q:          searchQ,
			Capability: searchCapability,
			Status:     searchStatus,
			Online:     searchOnline,
		})
		if err != nil {
			return err
		}
		printAgents(agents)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchSkill, "skill", "", "match against skill ids and names")
	searchCmd.Flags().StringVar(&searchTag, "tag", "", "exact match against skill tags")
	searchCmd.Flags().StringVar(&searchQ, "q", "", "free-text match on name, description, skill names")
	searchCmd.Flags().StringVar(&searchCapability, "capability", "", "require a capability, e.g. streaming")
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "filter by reported status")
	searchCmd.Flags().BoolVar(&searchOnline, "online", false, "only agents with a recent heartbeat")
}

func printAgents(agents []client.Agent) {
	if len(agents) == 0 {
		fmt.Println("no agents found")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tONLINE\tURL")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
			a.ID, a.Card.Name, a.Liveness.Status, a.Online, a.Card.URL)
	}
	w.Flush()
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agentdir %s\n", version)
	},
}
