package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tinyproxy/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		DescribeTable("creates a logger for every level",
			func(level string) {
				Expect(logger.New(level, false, "dev")).NotTo(BeNil())
			},
			Entry("debug", "debug"),
			Entry("info", "info"),
			Entry("conn", "conn"),
			Entry("warn", "warn"),
			Entry("error", "error"),
			Entry("invalid falls back to info", "invalid"),
		)

		It("should create prod logger", func() {
			log := logger.New("info", false, "prod")
			Expect(log).NotTo(BeNil())
		})

		It("should default to info behavior", func() {
			log := logger.New("info", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
			Expect(log.Enabled(context.Background(), logger.LevelConn)).To(BeTrue())
		})

		It("should hide info but keep connection logs at conn level", func() {
			log := logger.New("conn", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeFalse())
			Expect(log.Enabled(context.Background(), logger.LevelConn)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeTrue())
		})

		It("should hide connection logs at warn level", func() {
			log := logger.New("warn", false, "dev")

			Expect(log.Enabled(context.Background(), logger.LevelConn)).To(BeFalse())
			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeTrue())
		})

		It("should respect error level", func() {
			log := logger.New("error", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeFalse())
			Expect(log.Enabled(context.Background(), slog.LevelError)).To(BeTrue())
		})
	})

	Describe("NewWithWriter", func() {
		It("labels connection records as CONN in text output", func() {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "debug", false, "dev")

			log.Log(context.Background(), logger.LevelConn, "Rewriting URL")

			Expect(buf.String()).To(ContainSubstring("level=CONN"))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})

		It("labels connection records as CONN in prod JSON output", func() {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "debug", false, "prod")

			log.Log(context.Background(), logger.LevelConn, "Rewriting URL")

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record["level"]).To(Equal("CONN"))
			Expect(record["environment"]).To(Equal("prod"))
		})

		It("leaves the standard levels untouched", func() {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "debug", false, "dev")

			log.Warn("Skipping reverse proxy rule")

			Expect(buf.String()).To(ContainSubstring("level=WARN"))
		})
	})
})
