package fstree

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestFstreeSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "fstree exclusion rules suite")
}

var _ = Describe("Options.ShouldExclude", func() {
	It("excludes a directory matched by a /** pattern", func() {
		o := NewOptions(WithExclude("build/**"))
		Expect(o.ShouldExclude("build", true)).To(BeTrue())
		Expect(o.ShouldExclude("build/out.o", false)).To(BeTrue(), "** matches across '/', so the pattern also matches a descendant's relative path directly")
	})

	It("excludes a file matching a bare glob at the root", func() {
		o := NewOptions(WithExclude("*.tmp"))
		Expect(o.ShouldExclude("x.tmp", false)).To(BeTrue())
	})

	It("excludes a file matching a bare glob by basename at any depth", func() {
		o := NewOptions(WithExclude("*.tmp"))
		Expect(o.ShouldExclude("a/b/c.tmp", false)).To(BeTrue())
	})

	It("does not exclude a non-matching entry", func() {
		o := NewOptions(WithExclude("*.tmp", "build/**"))
		Expect(o.ShouldExclude("keep.txt", false)).To(BeFalse())
	})

	It("honours a custom exclude function ahead of patterns", func() {
		o := NewOptions(WithExcludeFunc(func(rel string, isDir bool) bool { return rel == "secret" }))
		Expect(o.ShouldExclude("secret", false)).To(BeTrue())
		Expect(o.ShouldExclude("public", false)).To(BeFalse())
	})

	It("treats a /** prefix match as excluded even without a trailing slash", func() {
		o := NewOptions(WithExclude("node_modules/**"))
		Expect(o.ShouldExclude("node_modules", true)).To(BeTrue())
		Expect(o.ShouldExclude("src/node_modules", true)).To(BeFalse())
	})
})
