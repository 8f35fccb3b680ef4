package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/athang/pixiu/internal/reliability"
	"github.com/athang/pixiu/internal/scheduler"
	"github.com/athang/pixiu/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP API 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.runServe()
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "启动定时调度器 (交易日自动更新与建议)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.runSchedule()
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "备份数据库到对象存储",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.runBackup(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("备份完成")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, scheduleCmd, backupCmd)
}

func (a *app) runServe() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.registerJobs()
	a.queue.Start(ctx)

	srv := server.New(server.Config{
		Log:       a.log,
		DB:        a.db,
		Cfg:       a.cfg,
		Book:      a.book,
		Knowledge: a.knowledge,
		Queue:     a.queue,
		Bus:       a.bus,
		Port:      a.cfg.Server.Port,
		Dev:       a.cfg.Server.Dev,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		a.log.Info().Str("signal", sig.String()).Msg("收到退出信号")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	cancel()
	a.queue.Wait()
	return nil
}

func (a *app) runSchedule() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.registerJobs()
	a.queue.Start(ctx)

	sched := scheduler.New(a.queue, a.log)
	if err := sched.AddDefaults(); err != nil {
		return err
	}
	sched.Start()

	fmt.Println("调度器已启动:")
	for _, e := range sched.Entries() {
		fmt.Printf("  %-18s %-8s 下次 %s\n", e.Name, e.Verb, e.NextRun.Format("2006-01-02 15:04"))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	a.log.Info().Str("signal", sig.String()).Msg("收到退出信号")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	sched.Stop(stopCtx)

	cancel()
	a.queue.Wait()
	return nil
}

func (a *app) runBackup(ctx context.Context) error {
	if a.cfg.Backup.Bucket == "" {
		return fmt.Errorf("未配置备份存储 (BACKUP_S3_BUCKET)")
	}

	store, err := reliability.NewS3Store(ctx, a.cfg.Backup, a.log)
	if err != nil {
		return err
	}
	svc := reliability.NewBackupService(a.db, store, a.bus, a.cfg.Backup.RetentionDays, a.log)
	key, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	a.log.Info().Str("key", key).Msg("备份已上传")
	return nil
}
