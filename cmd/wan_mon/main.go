package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"wan_mon/internal/collector"
	"wan_mon/internal/config"
	"wan_mon/internal/execx"
	"wan_mon/internal/influx"
	"wan_mon/internal/logger"
	"wan_mon/internal/metrics"
	"wan_mon/internal/probe"
	"wan_mon/internal/scheduler"
	"wan_mon/pkg/diag"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:          "wan_mon",
		Short:        "Interface-bound WAN quality monitor",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, v)
		},
	}
	config.AddFlags(root, v)

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the measurement scheduler until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, v)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "schedule",
		Short: "Print the planned tasks with their intervals and offsets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			return printSchedule(cmd, scheduler.Plan(cfg))
		},
	})
	return root
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.RunConfig, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, err
	}
	if err := config.ReadEnvFile(v, envFile); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync(log)

	for _, msg := range cfg.Deprecated {
		log.Warn(msg)
	}
	log.Info("Configuration loaded",
		zap.Strings("interfaces", cfg.Interfaces),
		zap.Bool("ping", cfg.Ping.Enabled),
		zap.Bool("speedtest", cfg.Speedtest.Enabled),
		zap.Bool("download", cfg.Download.Enabled),
		zap.Bool("http", cfg.HTTP.Enabled),
		zap.String("influx_url", cfg.Influx.URL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collector.NewExporter(collector.New(cfg.Interfaces, log.Named("collector")), 5*time.Second, log.Named("collector")),
	)
	m := metrics.New(reg)

	sink := influx.New(cfg.Influx, m, log.Named("sink"))
	defer sink.Close()
	if err := sink.Check(ctx); err != nil {
		log.Warn("InfluxDB is not reachable, writes will be retried", zap.Error(err))
	}

	s, err := scheduler.New(scheduler.Plan(cfg), buildProbers(cfg, log), sink, m,
		log.Named("scheduler"), cfg.TickInterval, cfg.ShutdownGrace)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if cfg.DiagListen != "" {
		d := diag.New(cfg.DiagListen, reg, func() interface{} { return s.Snapshot() }, log.Named("diag"))
		if err := d.Start(); err != nil {
			return err
		}
		defer func() {
			if err := d.Stop(context.Background()); err != nil {
				log.Warn("Failed to stop diagnostics server", zap.Error(err))
			}
		}()
	}

	return s.Run(ctx)
}

func buildProbers(cfg *config.RunConfig, log *zap.Logger) map[probe.Kind]probe.Prober {
	resolver := probe.InterfaceResolver{}
	return map[probe.Kind]probe.Prober{
		probe.KindLatency: probe.NewLatency(resolver, cfg.Ping.Targets, cfg.Ping.Count,
			cfg.Ping.Timeout, cfg.Ping.Privileged, log.Named("probe.latency")),
		probe.KindThroughput: probe.NewThroughput(resolver, execx.NewOSRunner(), cfg.Speedtest.Binary,
			cfg.Speedtest.Timeout, log.Named("probe.throughput")),
		probe.KindBulkDownload: probe.NewBulkDownload(resolver, cfg.Download.Files,
			cfg.Download.Timeout, log.Named("probe.download")),
		probe.KindHTTPLoad: probe.NewHTTPLoad(resolver, cfg.HTTP.Users, cfg.HTTP.SpawnRate,
			cfg.HTTP.Duration, cfg.HTTP.RequestTimeout, log.Named("probe.http")),
	}
}

func printSchedule(cmd *cobra.Command, specs []scheduler.Spec) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tINTERVAL\tOFFSET")
	for _, s := range specs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Interval, s.Offset)
	}
	return w.Flush()
}
