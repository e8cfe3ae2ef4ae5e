package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"usirest/aap"
	"usirest/auth"
	"usirest/client"
	"usirest/internal/config"
	"usirest/usi"
)

var rootCmd = &cobra.Command{
	Use:   "usi",
	Short: "EBI AAP/USI command line client",
	Long: `usi talks to EBI's Authentication/Authorisation/Profile service and the
Unified Submissions Interface for BioSamples: log in, browse teams and
submissions, upload samples, and finalize submissions once validation is
complete.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("debug") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initEnv)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initEnv() {
	viper.SetEnvPrefix("USI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "config file path")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	rootCmd.PersistentFlags().String("token", "", "bearer token (overrides token file)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(teamsCmd())
	rootCmd.AddCommand(domainsCmd())
	rootCmd.AddCommand(submissionsCmd())
	rootCmd.AddCommand(samplesCmd())
	rootCmd.AddCommand(userCmd())
}

func loginCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange AAP credentials for a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if user == "" {
				user = cfg.User
			}
			if user == "" {
				return fmt.Errorf("--user required")
			}
			password := viper.GetString("password")
			if password == "" {
				fmt.Fprintf(os.Stderr, "Password for %s: ", user)
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				password = strings.TrimSpace(line)
			}
			a, err := auth.Login(cmd.Context(), nil, cfg.AAPURL+"/auth", user, password)
			if err != nil {
				return err
			}
			if cfg.TokenFile != "" {
				if err := os.WriteFile(cfg.TokenFile, []byte(a.Token), 0o600); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Token saved to %s\n", cfg.TokenFile)
			}
			fmt.Println(a.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "AAP username")
	return cmd
}

func whoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show token claims and remaining validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				a := c.Auth
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"name":     a.Claims.Name,
						"nickname": a.Claims.Nickname,
						"email":    a.Claims.Email,
						"domains":  a.Claims.Domains,
						"expires":  a.Claims.ExpiresAt.Time,
						"expired":  a.IsExpired(),
					})
				}
				fmt.Println(a)
				fmt.Printf("Name: %s\nNickname: %s\nEmail: %s\nDomains: %s\n",
					a.Claims.Name, a.Claims.Nickname, a.Claims.Email, strings.Join(a.Claims.Domains, ", "))
				return nil
			})
		},
	}
	return cmd
}

func teamsCmd() *cobra.Command {
	teams := &cobra.Command{Use: "teams", Short: "Manage teams"}
	teams.AddCommand(teamsListCmd())
	teams.AddCommand(teamsCreateCmd())
	return teams
}

func teamsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				teams, err := r.Teams(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(teams)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Description"})
				for _, t := range teams {
					tw.AppendRow(table.Row{t.Name, t.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func teamsCreateCmd() *cobra.Command {
	var description, centre string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				t, err := usi.CreateTeam(ctx, c, description, centre)
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, "Note: generate a new token to see the new team")
				return printJSONOrPlain(t)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "team description")
	cmd.Flags().StringVar(&centre, "centre-name", "", "centre name")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("centre-name")
	return cmd
}

func domainsCmd() *cobra.Command {
	domains := &cobra.Command{Use: "domains", Short: "Inspect AAP domains"}
	domains.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the user's domains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				items, err := aap.Domains(ctx, c)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Description", "Reference"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.DomainName, d.DomainDesc, d.DomainReference})
				}
				tw.Render()
				return nil
			})
		},
	})
	return domains
}

func submissionsCmd() *cobra.Command {
	subs := &cobra.Command{Use: "submissions", Short: "Manage submissions"}
	subs.AddCommand(submissionsListCmd())
	subs.AddCommand(submissionsShowCmd())
	subs.AddCommand(submissionsCreateCmd())
	subs.AddCommand(submissionsStatusCmd())
	subs.AddCommand(submissionsFinalizeCmd())
	subs.AddCommand(submissionsDeleteCmd())
	return subs
}

func submissionsListCmd() *cobra.Command {
	var f usi.SubmissionFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				subs, err := r.Submissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(subs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Team", "Status", "Last modified"})
				for _, s := range subs {
					status, err := s.Status(ctx)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{s.Name(), s.Team.Name(), status, s.LastModifiedDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (Draft, Submitted, Completed)")
	cmd.Flags().StringVar(&f.Team, "team", "", "team filter")
	return cmd
}

func submissionsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				s, err := r.SubmissionByName(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrPlain(s)
			})
		},
	}
	return cmd
}

func submissionsCreateCmd() *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft submission in a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				t, err := r.TeamByName(ctx, team)
				if err != nil {
					return err
				}
				s, err := t.CreateSubmission(ctx)
				if err != nil {
					return err
				}
				return printJSONOrPlain(s)
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team name")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func submissionsStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <name>",
		Short: "Show validation status counters for a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				s, err := r.SubmissionByName(ctx, args[0])
				if err != nil {
					return err
				}
				counts, err := s.StatusCounts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				for status, n := range counts {
					fmt.Printf("%s: %d\n", status, n)
				}
				return nil
			})
		},
	}
	return cmd
}

func submissionsFinalizeCmd() *cobra.Command {
	var ignore []string
	cmd := &cobra.Command{
		Use:   "finalize <name>",
		Short: "Finalize a submission once validation is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				s, err := r.SubmissionByName(ctx, args[0])
				if err != nil {
					return err
				}
				if err := s.Finalize(ctx, ignore); err != nil {
					return err
				}
				status, err := s.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Submission %s is now %s\n", s.Name(), status)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&ignore, "ignore", []string{}, "validation author to ignore (repeatable)")
	return cmd
}

func submissionsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a draft submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				s, err := r.SubmissionByName(ctx, args[0])
				if err != nil {
					return err
				}
				return s.Delete(ctx)
			})
		},
	}
	return cmd
}

func samplesCmd() *cobra.Command {
	samples := &cobra.Command{Use: "samples", Short: "Manage samples in a submission"}
	samples.AddCommand(samplesListCmd())
	samples.AddCommand(samplesAddCmd())
	samples.AddCommand(samplesPatchCmd())
	samples.AddCommand(samplesDeleteCmd())
	return samples
}

// findSample resolves a sample by alias within a submission.
func findSample(ctx context.Context, r *usi.Root, submission, alias string) (*usi.Sample, error) {
	s, err := r.SubmissionByName(ctx, submission)
	if err != nil {
		return nil, err
	}
	samples, err := s.Samples(ctx, usi.SampleFilter{})
	if err != nil {
		return nil, err
	}
	for _, smp := range samples {
		if smp.Alias == alias {
			return smp, nil
		}
	}
	return nil, fmt.Errorf("submission %s has no sample %q", submission, alias)
}

func samplesListCmd() *cobra.Command {
	var status string
	var withErrors bool
	var ignore []string
	cmd := &cobra.Command{
		Use:   "list <submission>",
		Short: "List samples of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				s, err := r.SubmissionByName(ctx, args[0])
				if err != nil {
					return err
				}
				f := usi.SampleFilter{ValidationStatus: status, Ignore: ignore}
				if cmd.Flags().Changed("with-errors") {
					f.HasErrors = &withErrors
				}
				samples, err := s.Samples(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(samples)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Alias", "Title", "Taxon", "Release date", "Accession"})
				for _, smp := range samples {
					tw.AppendRow(table.Row{smp.Alias, smp.Title, smp.Taxon, smp.ReleaseDate, smp.Accession})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "validation status filter (Pending, Complete)")
	cmd.Flags().BoolVar(&withErrors, "with-errors", false, "filter by error presence")
	cmd.Flags().StringArrayVar(&ignore, "ignore", []string{}, "validation author to ignore (repeatable)")
	return cmd
}

func samplesAddCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add <submission>",
		Short: "Add samples from a JSON file (one object or an array)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var batch []usi.Sample
			if err := json.Unmarshal(data, &batch); err != nil {
				var one usi.Sample
				if err := json.Unmarshal(data, &one); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
				batch = []usi.Sample{one}
			}
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				s, err := r.SubmissionByName(ctx, args[0])
				if err != nil {
					return err
				}
				for _, sample := range batch {
					created, err := s.CreateSample(ctx, sample)
					if err != nil {
						return err
					}
					fmt.Printf("Created sample %s\n", created)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to sample JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func samplesPatchCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "patch <submission> <alias>",
		Short: "Update a sample from a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var update usi.Sample
			if err := json.Unmarshal(data, &update); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				smp, err := findSample(ctx, r, args[0], args[1])
				if err != nil {
					return err
				}
				if err := smp.Patch(ctx, update); err != nil {
					return err
				}
				return printJSONOrPlain(smp)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to sample JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func samplesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <submission> <alias>",
		Short: "Remove a sample from a submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoot(cmd.Context(), func(ctx context.Context, r *usi.Root) error {
				smp, err := findSample(ctx, r, args[0], args[1])
				if err != nil {
					return err
				}
				return smp.Delete(ctx)
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "AAP user management"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userMeCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var nu aap.NewUser
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new AAP account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			nu.Password = viper.GetString("password")
			nu.ConfirmPassword = nu.Password
			if nu.Password == "" {
				return fmt.Errorf("set USI_PASSWORD for the new account")
			}
			id, err := aap.CreateUser(cmd.Context(), nil, cfg.AAPURL, nu)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&nu.UserName, "username", "", "new username")
	cmd.Flags().StringVar(&nu.Email, "email", "", "email address")
	cmd.Flags().StringVar(&nu.FullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&nu.Organisation, "organisation", "", "organisation")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userMeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the caller's AAP user record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				u, err := aap.Me(ctx, c)
				if err != nil {
					return err
				}
				return printJSONOrPlain(u)
			})
		},
	}
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return config.Load(config.Path(viper.GetString("config")))
}

func loadAuth(cfg *config.Config) (*auth.Auth, error) {
	token := viper.GetString("token")
	if token == "" && cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err == nil {
			token = strings.TrimSpace(string(data))
		}
	}
	if token == "" {
		return nil, fmt.Errorf("no token; run 'usi login' or set USI_TOKEN")
	}
	return auth.New(token)
}

func withClient(ctx context.Context, fn func(context.Context, *client.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := loadAuth(cfg)
	if err != nil {
		return err
	}
	c := client.New(a)
	c.Endpoints = client.Endpoints{AAP: cfg.AAPURL, Root: cfg.RootURL}
	return fn(ctx, c)
}

func withRoot(ctx context.Context, fn func(context.Context, *usi.Root) error) error {
	return withClient(ctx, func(ctx context.Context, c *client.Client) error {
		r, err := usi.Attach(ctx, c)
		if err != nil {
			return err
		}
		return fn(ctx, r)
	})
}

func printJSONOrPlain(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
