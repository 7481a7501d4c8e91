package reverse_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tinyproxy/internal/reverse"
)

var _ = Describe("RoutingState", func() {
	It("starts unmatched", func() {
		var st reverse.RoutingState
		Expect(st.Matched()).To(BeFalse())
		Expect(reverse.AffinityCookie("", &st)).To(BeNil())
	})

	It("builds the tracking cookie for the matched path", func() {
		st := reverse.RoutingState{MatchedPath: "/x"}

		cookie := reverse.AffinityCookie("", &st)
		Expect(cookie).NotTo(BeNil())
		Expect(cookie.String()).To(Equal(reverse.DefaultCookieName + "=/x; Path=/"))
	})

	It("honours a configured cookie name", func() {
		st := reverse.RoutingState{MatchedPath: "/x"}

		Expect(reverse.AffinityCookie("MAGICNAME", &st).Name).To(Equal("MAGICNAME"))
	})

	It("forgets the path on reset", func() {
		st := reverse.RoutingState{MatchedPath: "/x"}
		st.Reset()

		Expect(st.Matched()).To(BeFalse())
	})

	It("treats a nil state as unmatched", func() {
		var st *reverse.RoutingState
		Expect(st.Matched()).To(BeFalse())
	})
})
