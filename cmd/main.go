// File: main.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"egress-client/pkg/client"
	"egress-client/pkg/config"
	"egress-client/pkg/database"
	"egress-client/pkg/headers"
	"egress-client/pkg/ipinfo"
	"egress-client/pkg/models"
	"egress-client/pkg/prober"
	"egress-client/pkg/proxy"
)

var (
	debugFlag bool
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "egress-client",
	Short: "A resilient HTTP client with proxy rotation and retries",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "Issue one request through the proxy pool with retries",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		method, _ := cmd.Flags().GetString("method")
		body, _ := cmd.Flags().GetString("data")
		headerFlags, _ := cmd.Flags().GetStringArray("header")
		record, _ := cmd.Flags().GetBool("record")

		var db *database.DB
		if record {
			var err error
			db, err = initDB()
			if err != nil {
				logger.Error("Error initializing database", "error", err)
				os.Exit(1)
			}
			defer db.Close()
		}

		c := buildClientWithDB(db)
		defer c.Close()

		opts := &client.Options{Headers: map[string]string{}}
		if body != "" {
			opts.Body = []byte(body)
		}
		for _, h := range headerFlags {
			name, value, ok := splitHeader(h)
			if !ok {
				logger.Error("Invalid header, expected Name: Value", "header", h)
				os.Exit(1)
			}
			opts.Headers[name] = value
		}

		start := time.Now()
		res, err := c.Do(context.Background(), method, args[0], opts)

		if record {
			recordRequest(db, args[0], method, start, res, err, c.CurrentProxy())
		}

		if err != nil {
			logger.Error("Request failed", "error", err)
			os.Exit(1)
		}

		logger.Info("Request succeeded",
			"status", res.Response.StatusCode,
			"attempts", res.Attempts,
			"proxy", c.CurrentProxy())
		fmt.Println(string(res.Body))
	},
}

var probeManyCmd = &cobra.Command{
	Use:   "probe-many [file]",
	Short: "Probe every URL in a file through a shared worker pool",
	Long: `Probe every URL in a file through a shared worker pool.
[file] contains one URL per line; blank lines and # comments are skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workers, _ := cmd.Flags().GetInt("workers")
		record, _ := cmd.Flags().GetBool("record")

		urls, err := prober.ReadURLFile(args[0])
		if err != nil {
			logger.Error("Error reading URL file", "error", err)
			os.Exit(1)
		}

		var db *database.DB
		if record {
			db, err = initDB()
			if err != nil {
				logger.Error("Error initializing database", "error", err)
				os.Exit(1)
			}
			defer db.Close()
		}

		c := buildClientWithDB(db)
		defer c.Close()

		err = prober.ProbeURLs(context.Background(), db, c, urls, workers)
		if err != nil {
			logger.Error("Error probing URLs", "error", err)
			os.Exit(1)
		}
	},
}

var nextProxyCmd = &cobra.Command{
	Use:   "next-proxy",
	Short: "Print the next proxy address the pool would hand out",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		pool := proxy.NewPool(cfg.Proxy, logger)
		defer pool.Close()

		addr := pool.GetNextProxy(context.Background())
		if addr == "" {
			logger.Error("No provider yielded a proxy address")
			os.Exit(1)
		}
		fmt.Println(addr)
	},
}

var checkProxyCmd = &cobra.Command{
	Use:   "check-proxy [address]",
	Short: "Validate a proxy address against the scheme://ipv4:port rules",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !proxy.ValidateAddress(args[0]) {
			fmt.Println("invalid")
			os.Exit(1)
		}
		fmt.Println("valid")
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report the egress IP visible through the current proxy",
	Run: func(cmd *cobra.Command, args []string) {
		c := buildClient()
		defer c.Close()

		info, err := ipinfo.Inspect(context.Background(), c)
		if err != nil {
			logger.Error("Error inspecting egress IP", "error", err)
			os.Exit(1)
		}

		asNumber, asOrg := ipinfo.SplitOrg(info.Org)
		logger.Info("Egress IP inspected",
			"ip", info.IP,
			"city", info.City,
			"country", info.Country,
			"as_number", asNumber,
			"as_org", asOrg,
			"proxy", c.CurrentProxy())
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [limit]",
	Short: "Print the most recent recorded requests",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit := 20
		if len(args) > 0 {
			var err error
			limit, err = strconv.Atoi(args[0])
			if err != nil {
				logger.Error("Invalid limit value", "error", err)
				os.Exit(1)
			}
		}

		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		logs, err := db.GetRecentRequests(context.Background(), limit)
		if err != nil {
			logger.Error("Error getting recent requests", "error", err)
			os.Exit(1)
		}

		for _, l := range logs {
			fmt.Printf("%s  %-6s %-50s status=%d attempts=%d proxy=%s error=%q\n",
				l.CreatedAt.Format(time.RFC3339), l.Method, l.URL,
				l.StatusCode, l.Attempts, l.Proxy, l.ErrorMsg)
		}
	},
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the audit log schema",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(context.Background()); err != nil {
			logger.Error("Error creating schema", "error", err)
			os.Exit(1)
		}
		logger.Info("Schema created successfully")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	probeCmd.Flags().StringP("method", "X", "GET", "HTTP method to use")
	probeCmd.Flags().String("data", "", "Request body")
	probeCmd.Flags().StringArrayP("header", "H", nil, "Request header as 'Name: Value' (repeatable)")
	probeCmd.Flags().Bool("record", false, "Record the outcome in the database")
	probeManyCmd.Flags().Int("workers", 4, "Number of concurrent probe workers")
	probeManyCmd.Flags().Bool("record", false, "Record outcomes in the database")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(probeManyCmd)
	rootCmd.AddCommand(nextProxyCmd)
	rootCmd.AddCommand(checkProxyCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(initDBCmd)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.egress-client")
	viper.AddConfigPath("/etc/egress-client/")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		os.Exit(1)
	}
}

func initDB() (*database.DB, error) {
	db, err := database.NewDB()
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}
	return db, nil
}

func loadConfig() *config.AppConfig {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		logger.Error("Error loading config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func buildClient() *client.Client {
	return buildClientWithDB(nil)
}

// buildClientWithDB wires the database, when present, into the pool as the
// proxy fetch audit sink.
func buildClientWithDB(db *database.DB) *client.Client {
	cfg := loadConfig()
	pool := proxy.NewPool(cfg.Proxy, logger)
	if db != nil {
		pool.SetFetchRecorder(db)
	}
	return client.New(cfg, pool, headers.NewSpoofer(), logger)
}

func recordRequest(db *database.DB, url, method string, start time.Time, res *client.Result, reqErr error, proxyAddr string) {
	record := models.RequestLog{
		ID:         uuid.New().String(),
		Method:     method,
		URL:        url,
		Proxy:      proxyAddr,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if reqErr != nil {
		record.ErrorMsg = reqErr.Error()
	} else {
		record.StatusCode = res.Response.StatusCode
		record.Attempts = res.Attempts
	}

	if err := db.InsertRequestLog(context.Background(), &record); err != nil {
		logger.Error("Error recording request", "error", err)
	}
}

func splitHeader(h string) (name, value string, ok bool) {
	for i := 0; i < len(h); i++ {
		if h[i] == ':' {
			name = h[:i]
			value = h[i+1:]
			for len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
			return name, value, name != ""
		}
	}
	return "", "", false
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
