package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/pkg/logger"
)

var _ = Describe("Logger", func() {
	ctx := context.Background()

	Describe("New", func() {
		It("should create a logger", func() {
			Expect(logger.New("info", false, "dev")).NotTo(BeNil())
		})

		DescribeTable("level handling",
			func(level string, enabled, disabled slog.Level) {
				log := logger.New(level, false, "dev")
				Expect(log.Enabled(ctx, enabled)).To(BeTrue())
				Expect(log.Enabled(ctx, disabled)).To(BeFalse())
			},
			Entry("debug", "debug", slog.LevelDebug, slog.LevelDebug-1),
			Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
			Entry("warn", "WARN", slog.LevelWarn, slog.LevelInfo),
			Entry("error", "error", slog.LevelError, slog.LevelWarn),
			Entry("unknown falls back to info", "verbose", slog.LevelInfo, slog.LevelDebug),
		)
	})

	Describe("NewWithWriter", func() {
		var buf *bytes.Buffer

		BeforeEach(func() {
			buf = &bytes.Buffer{}
		})

		It("should write JSON in prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "prod")
			log.Info("Backend is down", slog.String("backend", "backend-1"))

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record).To(HaveKeyWithValue("msg", "Backend is down"))
			Expect(record).To(HaveKeyWithValue("environment", "prod"))
			Expect(record).To(HaveKeyWithValue("backend", "backend-1"))
		})

		It("should write text outside prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "staging")
			log.Info("Load balancer started")

			Expect(buf.String()).To(ContainSubstring(`msg="Load balancer started"`))
			Expect(buf.String()).To(ContainSubstring("environment=staging"))
		})

		It("should add the source location when asked", func() {
			log := logger.NewWithWriter(buf, "info", true, "dev")
			log.Info("hello")

			Expect(buf.String()).To(ContainSubstring("source="))
		})
	})
})
