package marketplace

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordSpaces(t *testing.T) {
	require.Equal(t, 36, RegistrySpace)
	require.Equal(t, 684, ContractSpace)
	require.Equal(t, 64, ProposalSpace)
	require.Equal(t, 28, VaultSpace)
}

func TestContractLayoutOffsets(t *testing.T) {
	client := newTestAddress(0xAB)
	contractor := newTestAddress(0xCD)
	amount := uint64(99)
	c := &Contract{
		Client:     client,
		ContractID: 3,
		Title:      "hi",
		Topic:      "topic",
		Status:     StatusAccepted,
		Contractor: &contractor,
		Amount:     &amount,
	}
	data := c.Encode()

	disc := Discriminator(RecordContract)
	require.Equal(t, disc[:], data[:8])
	require.Equal(t, client[:], data[OffsetContractClient:OffsetContractClient+20])
	require.Equal(t, uint64(3), binary.LittleEndian.Uint64(data[OffsetContractID:]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[36:]))
	require.Equal(t, "hi", string(data[40:42]))
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(data[42:]))
	statusAt := 46 + 5
	require.Equal(t, byte(StatusAccepted), data[statusAt])
	require.Equal(t, byte(1), data[statusAt+1])
	require.Equal(t, contractor[:], data[statusAt+2:statusAt+22])
	require.Equal(t, byte(1), data[statusAt+22])
	require.Equal(t, amount, binary.LittleEndian.Uint64(data[statusAt+23:]))
	require.Equal(t, byte(0), data[len(data)-1])
	require.LessOrEqual(t, len(data), ContractSpace)

	decoded, err := DecodeContract(data)
	require.NoError(t, err)
	require.Equal(t, c, decoded)
}

func TestContractMaxSizeFitsSpace(t *testing.T) {
	contractor := newTestAddress(0x01)
	amount, id := uint64(1), uint64(2)
	c := &Contract{
		Title:              strings.Repeat("a", MaxTitleLength),
		Topic:              strings.Repeat("b", MaxTopicLength),
		Contractor:         &contractor,
		Amount:             &amount,
		AcceptedProposalID: &id,
	}
	require.Len(t, c.Encode(), ContractSpace)
}

func TestProposalLayoutOffsets(t *testing.T) {
	p := &Proposal{
		Contractor: newTestAddress(0x01),
		ProposalID: 9,
		Contract:   newTestAddress(0x02),
		Amount:     1_000,
	}
	data := p.Encode()
	require.Len(t, data, ProposalSpace)
	require.Equal(t, p.Contractor[:], data[OffsetProposalContractor:OffsetProposalContractor+20])
	require.Equal(t, uint64(9), binary.LittleEndian.Uint64(data[OffsetProposalID:]))
	require.Equal(t, p.Contract[:], data[OffsetProposalContract:OffsetProposalContract+20])
	require.Equal(t, uint64(1_000), binary.LittleEndian.Uint64(data[OffsetProposalAmount:]))
}

func TestRegistryAndVaultLayouts(t *testing.T) {
	reg := &ClientRegistry{Owner: newTestAddress(0x07), NextContractID: 4}
	data := reg.Encode()
	require.Len(t, data, RegistrySpace)
	require.Equal(t, reg.Owner[:], data[OffsetRegistryOwner:OffsetRegistryOwner+20])
	require.Equal(t, uint64(4), binary.LittleEndian.Uint64(data[28:]))

	vault := &Vault{Contract: newTestAddress(0x08)}
	require.Len(t, vault.Encode(), VaultSpace)

	kind, ok := RecordKindOf(vault.Encode())
	require.True(t, ok)
	require.Equal(t, RecordVault, kind)
}

func TestDecodeRejectsMalformedRecords(t *testing.T) {
	reg := (&ContractorRegistry{Owner: newTestAddress(0x01)}).Encode()
	_, err := DecodeClientRegistry(reg)
	require.ErrorIs(t, err, ErrInvalidRecord)

	_, err = DecodeContractorRegistry(reg[:20])
	require.ErrorIs(t, err, ErrInvalidRecord)

	_, err = DecodeContractorRegistry(append(bytes.Clone(reg), 0))
	require.ErrorIs(t, err, ErrInvalidRecord)

	contract := (&Contract{Title: "a", Topic: "b"}).Encode()
	statusAt := 8 + 20 + 8 + 4 + 1 + 4 + 1
	bad := bytes.Clone(contract)
	bad[statusAt] = 3
	_, err = DecodeContract(bad)
	require.ErrorIs(t, err, ErrInvalidRecord)

	bad = bytes.Clone(contract)
	bad[statusAt+1] = 2
	_, err = DecodeContract(bad)
	require.ErrorIs(t, err, ErrInvalidRecord)

	bad = bytes.Clone(contract)
	binary.LittleEndian.PutUint32(bad[36:], MaxTitleLength+1)
	_, err = DecodeContract(bad)
	require.ErrorIs(t, err, ErrInvalidRecord)

	_, ok := RecordKindOf([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestContractStatusText(t *testing.T) {
	for _, s := range []ContractStatus{StatusOpened, StatusAccepted, StatusClosed} {
		parsed, err := ParseContractStatus(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	_, err := ParseContractStatus("disputed")
	require.Error(t, err)
}

func TestMinimumBalance(t *testing.T) {
	params := DefaultRentParams()
	v, err := params.MinimumBalance(0)
	require.NoError(t, err)
	require.Equal(t, int64(128*6960), v.Int64())

	v, err = params.MinimumBalance(VaultSpace)
	require.NoError(t, err)
	require.Equal(t, int64((128+28)*6960), v.Int64())

	_, err = RentParams{AccountOverhead: 1, UnitsPerByte: ^uint64(0)}.MinimumBalance(1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = params.escrowTotal(^uint64(0))
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestErrorCodes(t *testing.T) {
	seen := make(map[uint32]bool)
	for _, e := range allErrors {
		require.False(t, seen[e.Code], "duplicate code %d", e.Code)
		seen[e.Code] = true
		got, ok := ErrorByCode(e.Code)
		require.True(t, ok)
		require.Same(t, e, got)
	}
	wrapped := wrap(ErrInvalidVault, "ctx")
	require.Equal(t, uint32(6011), CodeOf(wrapped))
	require.Equal(t, KindReferential, KindOf(wrapped))
	require.Zero(t, CodeOf(errNilState))
}
