package zatca_test

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/jhoicas/fatoora-api/internal/domain/zatca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Vector calculado con SHA-256 sobre "<Invoice><cbc:ID>1</cbc:ID></Invoice>".
const (
	testCanonicalXML    = "<Invoice><cbc:ID>1</cbc:ID></Invoice>"
	testContentHash     = "ux+p5wtTT+R9qpvQBOsGRJ2rJhye8w9HULVneRt17zE="
	testSeedChainedHash = "62Jum3bT88Q+AtHo8Cp68/HKdG/Orp3ROjA0SIfPpmU="
)

func TestSeedHash_EsBase64DeSHA256DeCero(t *testing.T) {
	sum := sha256.Sum256([]byte("0"))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%x", sum))), zatca.SeedHash)
}

func TestComputeChain_VectorExacto(t *testing.T) {
	h := zatca.ComputeChain("<?xml version=\"1.0\"?>\n<Invoice>\n  <cbc:ID>1</cbc:ID>\n</Invoice>", "")

	assert.Equal(t, testContentHash, h.CurrentHash)
	assert.Equal(t, zatca.SeedHash, h.PreviousHash, "sin cola previa se usa la semilla")
	assert.Equal(t, testSeedChainedHash, h.ChainedHash)
}

func TestChainedHash_Formula(t *testing.T) {
	prev := "cHJldmlvdXM="
	content := zatca.ContentHash(testCanonicalXML)
	sum := sha256.Sum256([]byte(prev + content))

	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), zatca.ChainedHash(prev, content))
}

func TestComputeChain_Continuidad(t *testing.T) {
	docs := []string{"<a>1</a>", "<a>2</a>", "<a>3</a>", "<a>4</a>"}
	prev := ""
	var chain []zatca.ChainHash
	for _, d := range docs {
		h := zatca.ComputeChain(d, prev)
		chain = append(chain, h)
		prev = h.ChainedHash
	}

	require.Len(t, chain, 4)
	assert.Equal(t, zatca.SeedHash, chain[0].PreviousHash)
	for i := 1; i < len(chain); i++ {
		assert.Equal(t, chain[i-1].ChainedHash, chain[i].PreviousHash, "eslabón %d", i)
	}
}

func TestComputeChain_SensibleAlPrevio(t *testing.T) {
	a := zatca.ComputeChain(testCanonicalXML, "A")
	b := zatca.ComputeChain(testCanonicalXML, "B")

	assert.Equal(t, a.CurrentHash, b.CurrentHash)
	assert.NotEqual(t, a.ChainedHash, b.ChainedHash)
}
