package metadata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contract-factory/contract-factory/internal/factory"
)

var (
	factoryAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	ownerAddr   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func sampleContract() *factory.Contract {
	return factory.NewContract(factory.ContractSpec{
		Address:   crypto.CreateAddress(factoryAddr, 1),
		Factory:   factoryAddr,
		Owner:     ownerAddr,
		Name:      "Some Name",
		Symbol:    "TTT",
		Sequence:  1,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
}

func TestRender_Golden(t *testing.T) {
	data, err := Render(NewDocument(sampleContract()))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "document", data)
}

func TestRender_ParsesBack(t *testing.T) {
	doc := NewDocument(sampleContract())
	doc.Name = `<Quote "&" Co>`

	data, err := Render(doc)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var got Document
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, doc, got)
}

func TestNewDocument_NormalizesToUTC(t *testing.T) {
	spec := sampleContract().Spec()
	spec.CreatedAt = time.Date(2024, 1, 2, 5, 4, 5, 0, time.FixedZone("EET", 2*3600))

	doc := NewDocument(factory.NewContract(spec))
	assert.Equal(t, time.UTC, doc.CreatedAt.Location())
	assert.True(t, doc.CreatedAt.Equal(spec.CreatedAt))
}

func TestPath(t *testing.T) {
	addr := common.HexToAddress("0xe7f1725e7734ce288f8367e1bb143e90bb3f0512")
	assert.Equal(t, "contracts/0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512.json", Path(addr))
}
