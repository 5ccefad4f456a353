package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"bwhelper/internal/browser"
	"bwhelper/internal/extractor"
	"bwhelper/internal/models"
	"bwhelper/internal/pipeline"
	"bwhelper/internal/processor"
	"bwhelper/internal/web"
	"bwhelper/internal/writer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动本地控制端服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if ready, msg := cfg.IsReady(); !ready {
			slog.Warn("配置未就绪", "message", msg)
		}

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.ServerOptions().Port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session := browser.NewSession(cfg.BrowserOptions())
		server := web.NewServer(cfg, session, models.NewConfigManager(cfg))
		return server.ListenAndServe(ctx, port)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "打开页面并持续处理每一道题",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		action, err := pipeline.ParseAction(mustString(cmd, "action"))
		if err != nil {
			return err
		}
		model := mustString(cmd, "model")
		if model == "" {
			model = cfg.DefaultModel()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session := browser.NewSession(cfg.BrowserOptions())
		if err := session.Start(); err != nil {
			return err
		}
		defer session.Stop()

		url := args[0]
		if cookie := cfg.Cookie(); cookie != "" {
			if err := session.ApplyCookies(ctx, cookie, url); err != nil {
				slog.Warn("写入Cookie失败", "error", err)
			}
		}
		if err := session.Navigate(ctx, url); err != nil {
			return err
		}

		pipe := pipeline.FromConfig(cfg, models.NewModelManager(cfg), func(e pipeline.Event) {
			if e.Type == "question" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", e.Message)
			}
		})

		if action.Watches() {
			err = pipe.Watch(ctx, session, action, model)
		} else {
			_, err = pipe.ProcessCurrent(ctx, session, action, model)
		}

		if save, _ := cmd.Flags().GetBool("save-cookies"); save {
			saveCtx := context.WithoutCancel(ctx)
			if cookie, cerr := session.Cookies(saveCtx); cerr == nil {
				if cerr = cfg.UpdateCookie(cookie); cerr != nil {
					slog.Warn("保存Cookie失败", "error", cerr)
				}
			} else {
				slog.Warn("读取Cookie失败", "error", cerr)
			}
		}

		if errors.Is(err, context.Canceled) {
			slog.Info("已停止")
			return nil
		}
		return err
	},
}

var offlineCmd = &cobra.Command{
	Use:   "offline <file.html>",
	Short: "处理本地保存的页面，并写出填好答案的 HTML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		action, err := pipeline.ParseAction(mustString(cmd, "action"))
		if err != nil {
			return err
		}
		model := mustString(cmd, "model")
		if model == "" {
			model = cfg.DefaultModel()
		}

		doc, err := processor.LoadDocument(args[0])
		if err != nil {
			return err
		}
		surface := writer.NewDocumentSurface(doc)

		pipe := pipeline.FromConfig(cfg, models.NewModelManager(cfg), nil)
		out, err := pipe.ProcessCurrent(cmd.Context(), surface, action, model)
		if err != nil {
			return err
		}
		slog.Info("处理完成", "status", out.Status, "answer", out.Answer.Text)

		page, err := surface.HTML()
		if err != nil {
			return err
		}
		output := mustString(cmd, "output")
		if output == "" || output == "-" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), page)
			return err
		}
		return os.WriteFile(output, []byte(page), 0o644)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <url|file>...",
	Short: "只提取题目并以 JSON 输出，不请求模型",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var urls []string
		pages := make([]processor.Page, 0, len(args))
		for _, arg := range args {
			if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
				urls = append(urls, arg)
				continue
			}
			doc, err := processor.LoadDocument(arg)
			pages = append(pages, processor.Page{URL: arg, Doc: doc, Err: err})
		}
		if len(urls) > 0 {
			fetcher, err := processor.NewFetcher(cfg.Cookie())
			if err != nil {
				return err
			}
			pages = append(pages, fetcher.FetchAll(cmd.Context(), urls)...)
		}

		type result struct {
			Source   string      `json:"source"`
			Question interface{} `json:"question,omitempty"`
			Error    string      `json:"error,omitempty"`
		}
		ex := extractor.New()
		results := make([]result, 0, len(pages))
		for _, p := range pages {
			r := result{Source: p.URL}
			if p.Err != nil {
				r.Error = p.Err.Error()
			} else if q, err := extractDoc(ex, p.Doc); err != nil {
				r.Error = err.Error()
			} else {
				r.Question = q
			}
			results = append(results, r)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func extractDoc(ex *extractor.Extractor, doc *goquery.Document) (interface{}, error) {
	q, err := ex.Extract(doc)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func init() {
	serveCmd.Flags().Int("port", 0, "监听端口（默认使用配置文件）")

	for _, c := range []*cobra.Command{runCmd, offlineCmd} {
		c.Flags().String("model", "", "模型名称或 auto（默认使用配置文件）")
	}
	runCmd.Flags().String("action", string(pipeline.ActionProcessQuiz), "processQuiz, processAndMark 或 markAnswers")
	runCmd.Flags().Bool("save-cookies", false, "退出时把浏览器 Cookie 写回配置文件")
	offlineCmd.Flags().String("action", string(pipeline.ActionProcessAndMark), "processQuiz, processAndMark 或 markAnswers")
	offlineCmd.Flags().StringP("output", "o", "-", "输出文件，- 表示标准输出")
}
