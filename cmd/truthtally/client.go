package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/truthtally/truthtally/internal/client"
	"github.com/truthtally/truthtally/internal/model"
)

// CLIConfig holds the client session persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Email    string `json:"email"`
	Token    string `json:"token"`
	TokenExp string `json:"token_expires"`
}

var (
	serverURL string
	email     string
	password  string

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in (registering first with --register) and save the token",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}

	whoamiCmd = &cobra.Command{
		Use:     "whoami",
		Aliases: []string{"status"},
		Short:   "Show the saved session and the identity the server sees",
		Args:    cobra.NoArgs,
		RunE:    runWhoami,
	}

	registerFlag bool

	statementsCmd = &cobra.Command{
		Use:   "statements [politician-id]",
		Short: "List live statements, optionally for one politician",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatements,
	}

	voteCmd = &cobra.Command{
		Use:   "vote <statement-id> <up|down>",
		Short: "Vote on a statement",
		Args:  cobra.ExactArgs(2),
		RunE:  runVote,
	}

	flaggedCmd = &cobra.Command{
		Use:   "flagged",
		Short: "List statements the community has flagged (mod, admin)",
		Args:  cobra.NoArgs,
		RunE:  runFlagged,
	}

	listLimit int
)

func init() {
	rootCmd.AddCommand(loginCmd, whoamiCmd, statementsCmd, voteCmd, flaggedCmd)

	loginCmd.Flags().StringVarP(&serverURL, "url", "u", "http://localhost:8080", "server URL")
	loginCmd.Flags().StringVarP(&email, "email", "e", "", "account email (required)")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "account password (defaults to $TRUTHTALLY_PASSWORD)")
	loginCmd.Flags().BoolVar(&registerFlag, "register", false, "create the account first")
	_ = loginCmd.MarkFlagRequired("email")

	statementsCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of results")
	flaggedCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of results")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if password == "" {
		password = os.Getenv("TRUTHTALLY_PASSWORD")
	}
	if password == "" {
		return errors.New("--password or $TRUTHTALLY_PASSWORD is required")
	}

	c := client.New(strings.TrimSuffix(serverURL, "/"))
	var (
		user *model.User
		err  error
	)
	if registerFlag {
		user, err = c.RegisterAndLogin(email, password)
	} else {
		user, err = c.Login(email, password)
	}
	if err != nil {
		return err
	}

	cfg := CLIConfig{
		BaseURL:  c.BaseURL,
		Email:    user.Email,
		Token:    c.Token,
		TokenExp: c.TokenExp.Format(time.RFC3339),
	}
	if err := saveCLIConfig(cfg); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Printf("✓ Signed in as %s (%s)\n", user.Email, user.Role)
	fmt.Printf("  Expires: %s\n", cfg.TokenExp)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	fmt.Printf("Server: %s\n", cfg.BaseURL)
	fmt.Printf("Email:  %s\n", cfg.Email)
	fmt.Printf("Token:  expires %s\n", cfg.TokenExp)

	c, err := loadAuthenticatedClient()
	if err != nil {
		return err
	}
	ident, err := c.Me()
	if err != nil {
		return err
	}
	fmt.Printf("Role:   %s\n", ident.Role)
	return nil
}

func runStatements(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	politicianID := ""
	if len(args) == 1 {
		politicianID = args[0]
	}
	list, err := client.New(cfg.BaseURL).ListStatements(politicianID, listLimit, 0)
	if err != nil {
		return err
	}
	printStatements(list)
	return nil
}

func runVote(cmd *cobra.Command, args []string) error {
	var value int
	switch args[1] {
	case "up", "+1", "1":
		value = 1
	case "down", "-1":
		value = -1
	default:
		return fmt.Errorf("vote must be up or down, got %q", args[1])
	}

	c, err := loadAuthenticatedClient()
	if err != nil {
		return err
	}
	res, err := c.Vote(args[0], value)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Voted %s: %d up / %d down\n", args[1], res.Upvotes, res.Downvotes)
	if res.NewlyFlagged {
		fmt.Println("  This vote flagged the statement.")
	}
	return nil
}

func runFlagged(cmd *cobra.Command, args []string) error {
	c, err := loadAuthenticatedClient()
	if err != nil {
		return err
	}
	list, err := c.Flagged(listLimit)
	if err != nil {
		return err
	}
	printStatements(list)
	return nil
}

func printStatements(list []model.StatementView) {
	if len(list) == 0 {
		fmt.Println("No statements.")
		return
	}
	for _, s := range list {
		flag := ""
		if s.Flagged {
			flag = " [flagged]"
		}
		fmt.Printf("%s  %-7s +%d/-%d%s\n    %s\n", s.ID, s.Status, s.Upvotes, s.Downvotes, flag, s.Text)
	}
}

func truthtallyDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".truthtally")
}

func cliConfigPath() string {
	return filepath.Join(truthtallyDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not signed in - run 'truthtally login --email <email>'")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	if err := os.MkdirAll(truthtallyDir(), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(cliConfigPath(), data, 0600)
}

func loadAuthenticatedClient() (*client.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, errors.New("not authenticated - run 'truthtally login'")
	}
	exp, _ := time.Parse(time.RFC3339, cfg.TokenExp)
	if time.Now().After(exp) {
		return nil, errors.New("token expired - run 'truthtally login'")
	}

	c := client.New(cfg.BaseURL)
	c.Token = cfg.Token
	c.TokenExp = exp
	return c, nil
}
