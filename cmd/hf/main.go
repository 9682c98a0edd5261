package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"hostflow/internal/app"
	"hostflow/internal/config"
	"hostflow/internal/db"
	"hostflow/internal/domain"
	"hostflow/internal/engine"
	"hostflow/internal/feedback"
	"hostflow/internal/migrate"
	"hostflow/internal/server"
	hostflowsdk "hostflow/sdk/go"
)

var (
	cfg *config.Config
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "hf",
	Short: "Hostflow contributor CLI",
	Long: `Hostflow walks hosts through multi-step contributions: property listings,
events, community groups and job applications.
- Each contribution is a YAML document (kind: property|event|group|job_application).
- The first step creates a remote draft; later steps update sections of it.
- Pricing and media are applied on submit; media is compressed to JPEG before upload.
- Approved entities are read-only.
- 'hf serve' runs a local sandbox backend on SQLite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(cmd.Name() == "serve", viper.GetBool("debug"))
		if err != nil {
			return err
		}
		log = l
		loaded, err := config.Load(viper.GetString("config"))
		if err != nil {
			return err
		}
		if v := viper.GetString("api"); v != "" {
			loaded.API.BaseURL = v
		}
		if v := viper.GetString("token"); v != "" {
			loaded.API.Token = v
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", feedback.Message(err))
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HOSTFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("token", "HOSTFLOW_API_TOKEN", "HOSTFLOW_TOKEN")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", config.FileName, "config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	rootCmd.PersistentFlags().String("api", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().String("token", "", "API bearer token (overrides config)")
	for _, name := range []string{"config", "json", "debug", "api", "token"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(meCmd())
	rootCmd.AddCommand(listingCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(mediaCmd())
	rootCmd.AddCommand(phoneCmd())
	rootCmd.AddCommand(configCmd())
}

// newLogger logs JSON to stderr. Client commands only surface warnings so
// stdout stays scriptable; the server logs requests at info.
func newLogger(serving, debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if serving {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func serveCmd() *cobra.Command {
	var addr, basePath, workspace string
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sandbox HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if workspace == "" {
				workspace = cfg.Server.Workspace
			}
			if !memory {
				if _, err := db.EnsureWorkspace(workspace); err != nil {
					return err
				}
			}
			conn, err := db.Open(db.Config{Workspace: workspace, Memory: memory})
			if err != nil {
				return err
			}
			defer conn.Close()
			version, err := migrate.Migrate(cmd.Context(), conn)
			if err != nil {
				return err
			}
			dbPath := db.Path(workspace)
			if memory {
				dbPath = ":memory:"
			}
			log.Info("database ready", zap.String("path", dbPath), zap.Int("schema_version", version))
			if os.Getenv("HOSTFLOW_JWT_SECRET") != "" {
				cfg.Server.JWTSecret = os.Getenv("HOSTFLOW_JWT_SECRET")
			}
			e := engine.New(conn, cfg, log.Named("engine"))
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Server.JWTSecret, Logger: log.Named("auth")},
				Logger:   log.Named("http"),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving hostflow sandbox on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace directory holding .hostflow/")
	cmd.Flags().BoolVar(&memory, "memory", false, "keep the database in memory")
	return cmd
}

func loginCmd() *cobra.Command {
	var p hostflowsdk.Profile
	var save bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Mint a sandbox token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			session, err := app.Login(cmd.Context(), c, p)
			if err != nil {
				return err
			}
			if save {
				if err := saveToken(viper.GetString("config"), session.Token); err != nil {
					return err
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": session.Token, "user_id": session.UserID, "roles": session.Roles})
			}
			fmt.Println(session.Token)
			if !save {
				fmt.Fprintln(os.Stderr, "export HOSTFLOW_API_TOKEN=<token> or rerun with --save")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&p.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&p.Name, "name", "", "display name")
	cmd.Flags().StringVar(&p.Email, "email", "", "email")
	cmd.Flags().StringVar(&p.Phone, "phone", "", "phone number")
	cmd.Flags().StringSliceVar(&p.Roles, "role", nil, "role (repeatable)")
	cmd.Flags().BoolVar(&save, "save", false, "store the token in the config file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, session, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(session)
			}
			tw := newTable()
			tw.AppendRow(table.Row{"User", session.UserID})
			tw.AppendRow(table.Row{"Name", session.Profile.Name})
			tw.AppendRow(table.Row{"Email", session.Profile.Email})
			tw.AppendRow(table.Row{"Phone", session.Profile.Phone})
			tw.AppendRow(table.Row{"Roles", strings.Join(session.Roles, ", ")})
			tw.Render()
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(redacted(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default hostflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	return c
}

func redacted(c *config.Config) config.Config {
	out := *c
	if out.API.Token != "" {
		out.API.Token = "***"
	}
	if out.Server.JWTSecret != "" {
		out.Server.JWTSecret = "***"
	}
	return out
}

// saveToken rewrites the config file at path with api.token set.
func saveToken(path, token string) error {
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	c.API.Token = token
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func newClient() *hostflowsdk.Client {
	c := hostflowsdk.New(cfg.API.BaseURL, cfg.API.Token)
	c.Timeout = cfg.API.Timeout
	return c
}

func resolve(ctx context.Context) (*hostflowsdk.Client, domain.Session, error) {
	c := newClient()
	session, err := app.ResolveSession(ctx, c, cfg.API.Token)
	if err != nil {
		return nil, domain.Session{}, err
	}
	log.Debug("session resolved", zap.String("user", session.UserID), zap.Strings("roles", session.Roles))
	return c, session, nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
