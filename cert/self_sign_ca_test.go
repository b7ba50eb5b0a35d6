package cert_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/kestrelnet/captureproxy/cert"
)

func TestNewSelfSignCAMemoryMintsLeafSignedByRoot(t *testing.T) {
	c := qt.New(t)

	ca, err := cert.NewSelfSignCAMemory()
	c.Assert(err, qt.IsNil)

	root := ca.GetRootCA()
	c.Assert(root, qt.IsNotNil)

	leaf, err := ca.GetCert("example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Leaf.DNSNames, qt.DeepEquals, []string{"example.com"})

	c.Assert(leaf.Leaf.CheckSignatureFrom(root), qt.IsNil)
}

func TestGetCertCachesByAuthority(t *testing.T) {
	c := qt.New(t)

	ca, err := cert.NewSelfSignCAMemory()
	c.Assert(err, qt.IsNil)

	first, err := ca.GetCert("example.com")
	c.Assert(err, qt.IsNil)

	second, err := ca.GetCert("example.com")
	c.Assert(err, qt.IsNil)

	c.Assert(first, qt.Equals, second)
}

func TestGetCertUsesIPAddressSANForIPHost(t *testing.T) {
	c := qt.New(t)

	ca, err := cert.NewSelfSignCAMemory()
	c.Assert(err, qt.IsNil)

	leaf, err := ca.GetCert("127.0.0.1")
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Leaf.DNSNames, qt.HasLen, 0)
	c.Assert(leaf.Leaf.IPAddresses, qt.HasLen, 1)
}
