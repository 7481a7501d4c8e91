package reverse_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tinyproxy/internal/reverse"
	"github.com/angeloszaimis/tinyproxy/pkg/logger"
)

type emittedError struct {
	status  int
	reason  string
	details []string
}

type fakeConn struct {
	state  reverse.RoutingState
	errors []emittedError
}

func (c *fakeConn) RoutingState() *reverse.RoutingState {
	return &c.state
}

func (c *fakeConn) IndicateError(status int, reason string, details ...string) error {
	c.errors = append(c.errors, emittedError{status: status, reason: reason, details: details})
	return nil
}

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		registry *reverse.Registry
		conn     *fakeConn
		headers  http.Header
		logs     *bytes.Buffer
		log      *slog.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		logs = &bytes.Buffer{}
		log = logger.NewWithWriter(logs, "debug", false, "dev")
		registry = reverse.NewRegistry(log)
		conn = &fakeConn{}
		headers = http.Header{}
	})

	Describe("direct path match", func() {
		var engine *reverse.Engine

		BeforeEach(func() {
			registry.Add("/x", "http://b/")
			engine = reverse.NewEngine(registry, reverse.Options{}, log)
		})

		It("should strip the matched prefix and keep the backend URL verbatim", func() {
			res, err := engine.Rewrite(ctx, conn, headers, "/x/y")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.URL).To(Equal("http://b//y"))
			Expect(res.Rule.Path).To(Equal("/x"))
			Expect(res.ViaCookie).To(BeFalse())
		})

		It("should join without doubling when the prefix ends in a slash", func() {
			registry.Add("/x/", "http://b/")

			res, err := engine.Rewrite(ctx, conn, headers, "/x/y")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.URL).To(Equal("http://b/y"))
		})

		It("should produce the bare backend URL for an exact match", func() {
			res, err := engine.Rewrite(ctx, conn, headers, "/x")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.URL).To(Equal("http://b/"))
		})

		It("should log the rewrite at connection level", func() {
			_, err := engine.Rewrite(ctx, conn, headers, "/x/y")
			Expect(err).NotTo(HaveOccurred())
			Expect(logs.String()).To(ContainSubstring("level=CONN"))
			Expect(logs.String()).To(ContainSubstring("Rewriting URL"))
		})

		It("should not record the matched path when the cookie feature is off", func() {
			_, err := engine.Rewrite(ctx, conn, headers, "/x/y")
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.state.Matched()).To(BeFalse())
		})
	})

	Describe("pass through", func() {
		It("should leave absolute URLs alone", func() {
			registry.Add("/", "http://b/")
			engine := reverse.NewEngine(registry, reverse.Options{}, log)

			res, err := engine.Rewrite(ctx, conn, headers, "http://example.com/")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rewritten()).To(BeFalse())
		})

		It("should return no rewrite for unmatched paths", func() {
			registry.Add("/x", "http://b/")
			engine := reverse.NewEngine(registry, reverse.Options{}, log)

			res, err := engine.Rewrite(ctx, conn, headers, "/other")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rewritten()).To(BeFalse())
			Expect(conn.errors).To(BeEmpty())
			Expect(logs.String()).To(ContainSubstring("(none)"))
		})

		It("should never rewrite after an invalid registration", func() {
			registry.Add("/x", "not-a-url")
			engine := reverse.NewEngine(registry, reverse.Options{MagicCookie: true}, log)

			for _, path := range []string{"/", "/x", "/x/y"} {
				res, err := engine.Rewrite(ctx, conn, headers, path)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Rewritten()).To(BeFalse())
			}
		})
	})

	Describe("reverse-only mode", func() {
		var engine *reverse.Engine

		BeforeEach(func() {
			engine = reverse.NewEngine(registry, reverse.Options{ReverseOnly: true}, log)
		})

		It("should deny unmatched requests with exactly one 400", func() {
			res, err := engine.Rewrite(ctx, conn, headers, "/whatever")
			Expect(errors.Is(err, reverse.ErrRoutingDenied)).To(BeTrue())
			Expect(res.Rewritten()).To(BeFalse())

			Expect(conn.errors).To(HaveLen(1))
			Expect(conn.errors[0].status).To(Equal(http.StatusBadRequest))
			Expect(conn.errors[0].reason).To(Equal("Bad Request"))
			Expect(conn.errors[0].details).To(Equal([]string{
				"detail", "Request has an invalid URL",
				"url", "/whatever",
			}))
			Expect(logs.String()).To(ContainSubstring("level=ERROR"))
		})

		It("should deny absolute URLs too", func() {
			_, err := engine.Rewrite(ctx, conn, headers, "http://example.com/")
			Expect(errors.Is(err, reverse.ErrRoutingDenied)).To(BeTrue())
		})

		It("should let matched requests through", func() {
			registry.Add("/x", "http://b/")

			res, err := engine.Rewrite(ctx, conn, headers, "/x/y")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rewritten()).To(BeTrue())
			Expect(conn.errors).To(BeEmpty())
		})

		It("should tolerate a nil connection", func() {
			_, err := engine.Rewrite(ctx, nil, headers, "/whatever")
			Expect(errors.Is(err, reverse.ErrRoutingDenied)).To(BeTrue())
		})
	})

	Describe("magic tracking cookie", func() {
		var engine *reverse.Engine

		BeforeEach(func() {
			registry.Add("/x", "http://b/")
			engine = reverse.NewEngine(registry, reverse.Options{
				MagicCookie: true,
				CookieName:  "MAGICNAME",
			}, log)
		})

		It("should route by the cookie when the path matches no rule", func() {
			headers.Set("Cookie", "MAGICNAME=/x")

			res, err := engine.Rewrite(ctx, conn, headers, "/page.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ViaCookie).To(BeTrue())
			Expect(res.URL).To(Equal("http://b/page.html"))
			Expect(logs.String()).To(ContainSubstring("Magical tracking cookie says"))
		})

		It("should strip only the leading slash on a cookie match", func() {
			headers.Set("Cookie", "MAGICNAME=/x")

			res, err := engine.Rewrite(ctx, conn, headers, "/y/z")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.URL).To(Equal("http://b/y/z"))
		})

		It("should find the cookie among others", func() {
			headers.Set("Cookie", "session=abc; MAGICNAME=/x; theme=dark")

			res, err := engine.Rewrite(ctx, conn, headers, "/page.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rule.Path).To(Equal("/x"))
		})

		It("should ignore cookies whose name only ends with the magic name", func() {
			headers.Set("Cookie", "NOTMAGICNAME=/x")

			res, err := engine.Rewrite(ctx, conn, headers, "/page.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rewritten()).To(BeFalse())
		})

		It("should prefer a direct path match over the cookie", func() {
			registry.Add("/direct", "http://direct/")
			headers.Set("Cookie", "MAGICNAME=/x")

			res, err := engine.Rewrite(ctx, conn, headers, "/direct/a")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ViaCookie).To(BeFalse())
			Expect(res.URL).To(Equal("http://direct//a"))
		})

		It("should record the matched rule for the response path", func() {
			_, err := engine.Rewrite(ctx, conn, headers, "/x/y")
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.state.MatchedPath).To(Equal("/x"))
		})

		It("should record nothing when no rule matched", func() {
			headers.Set("Cookie", "MAGICNAME=/unknown")

			res, err := engine.Rewrite(ctx, conn, headers, "/page.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rewritten()).To(BeFalse())
			Expect(conn.state.Matched()).To(BeFalse())
		})

		It("should ignore the cookie when the feature is off", func() {
			plain := reverse.NewEngine(registry, reverse.Options{CookieName: "MAGICNAME"}, log)
			headers.Set("Cookie", "MAGICNAME=/x")

			res, err := plain.Rewrite(ctx, conn, headers, "/page.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rewritten()).To(BeFalse())
		})

		It("should use the default cookie name when none is configured", func() {
			dflt := reverse.NewEngine(registry, reverse.Options{MagicCookie: true}, log)
			headers.Set("Cookie", reverse.DefaultCookieName+"=/x")

			res, err := dflt.Rewrite(ctx, conn, headers, "/page.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ViaCookie).To(BeTrue())
			Expect(dflt.Options().CookieName).To(Equal(reverse.DefaultCookieName))
		})

		It("should accept a nil header map", func() {
			res, err := engine.Rewrite(ctx, conn, nil, "/page.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rewritten()).To(BeFalse())
		})
	})
})
