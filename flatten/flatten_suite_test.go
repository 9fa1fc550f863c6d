package flatten_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestFlatten(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Flatten Suite")
}
