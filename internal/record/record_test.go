package record

import (
	"errors"
	"reflect"
	"testing"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
	"ammCore/internal/ledger"
	"ammCore/internal/quote"
	"ammCore/internal/rewards"
)

func testKey(b byte) amm.Key {
	var k amm.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func samplePool() *ledger.PoolState {
	return &ledger.PoolState{
		Key: testKey(1),
		Config: ledger.Config{
			TradeFeeBps:              30,
			ProtocolFeeBps:           2_000,
			FundFeeBps:               1_000,
			CreatePoolFee:            5_000,
			DepositRatioToleranceBps: 100,
			OracleMode:               quote.OracleBound,
			MaxDeviationBps:          500,
			FeeMode:                  quote.FeeVolatility,
		},
		Reserve0:      1_000_000,
		Reserve1:      2_000_000,
		LpSupply:      1_414_213,
		ProtocolFees0: 42,
		ProtocolFees1: 7,
		FundFees0:     3,
		FundFees1:     1,
		Status:        ledger.StatusSwapEnabled | ledger.StatusDepositEnabled,
	}
}

func TestPoolStateRoundTrip(t *testing.T) {
	want := samplePool()
	data, err := EncodePoolState(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != PoolStateSize {
		t.Fatalf("encoded %d bytes, want %d", len(data), PoolStateSize)
	}
	got, err := DecodePoolState(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestDecodePoolStateRejectsCorruption(t *testing.T) {
	data, err := EncodePoolState(samplePool())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)-1] = 1
	if _, err := DecodePoolState(tampered); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("reserved tail byte: got %v", err)
	}

	// Status byte sits right after the oracle mode byte.
	statusOff := 32 + 6*8 + 1
	tampered = append([]byte(nil), data...)
	tampered[statusOff] = 0xF0
	if _, err := DecodePoolState(tampered); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("unknown status bits: got %v", err)
	}

	tampered = append([]byte(nil), data...)
	tampered[statusOff-1] = 9
	if _, err := DecodePoolState(tampered); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("unknown oracle mode: got %v", err)
	}

	tampered = append([]byte(nil), data...)
	tampered[statusOff+1] = 9
	if _, err := DecodePoolState(tampered); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("unknown fee mode: got %v", err)
	}

	if _, err := DecodePoolState(data[:PoolStateSize-1]); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("short record: got %v", err)
	}
}

func TestDecodePoolStateRevalidatesConfig(t *testing.T) {
	p := samplePool()
	p.Config.TradeFeeBps = amm.BpsDenominator
	// Encoding does not validate rates; only decode does.
	data, err := EncodePoolState(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodePoolState(data); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("fee at denominator: got %v", err)
	}
}

func TestPositionRoundTrip(t *testing.T) {
	want := &ledger.Position{
		Owner:             testKey(2),
		Pool:              testKey(1),
		Token0Deposited:   500,
		Token1Deposited:   1_000,
		Token0Withdrawn:   100,
		Token1Withdrawn:   200,
		LpOwned:           650,
		FirstInvestmentAt: 1_700_000_000,
	}
	data, err := EncodePosition(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePosition(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func sampleCampaign() *rewards.Campaign {
	return &rewards.Campaign{
		Key:              testKey(3),
		Pool:             testKey(1),
		RewardToken:      testKey(4),
		TotalToDisburse:  1_000_000,
		StartAt:          100,
		EndAt:            1_100,
		EmissionRate:     1_000,
		LastCalculatedAt: 600,
		AccPerShare:      uint256.MustFromDecimal("5000000000000000"),
		TotalDisbursed:   400_000,
		EscrowLeft:       600_000,
		Migrated:         false,
	}
}

func TestCampaignRoundTrip(t *testing.T) {
	want := sampleCampaign()
	data, err := EncodeCampaign(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != CampaignSize {
		t.Fatalf("encoded %d bytes, want %d", len(data), CampaignSize)
	}
	got, err := DecodeCampaign(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	want.Migrated = true
	data, err = EncodeCampaign(want)
	if err != nil {
		t.Fatalf("encode migrated: %v", err)
	}
	got, err = DecodeCampaign(data)
	if err != nil {
		t.Fatalf("decode migrated: %v", err)
	}
	if !got.Migrated {
		t.Fatalf("migration marker lost in round trip")
	}
}

func TestDecodeCampaignEnforcesInvariants(t *testing.T) {
	// Migration marker byte sits right after the escrow field.
	markerOff := 3*32 + 5*8 + 16 + 2*8

	data, err := EncodeCampaign(sampleCampaign())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tampered := append([]byte(nil), data...)
	tampered[markerOff] = 2
	if _, err := DecodeCampaign(tampered); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("marker byte 2: got %v", err)
	}

	c := sampleCampaign()
	c.EndAt = c.StartAt
	data, _ = EncodeCampaign(c)
	if _, err := DecodeCampaign(data); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("empty schedule: got %v", err)
	}

	c = sampleCampaign()
	c.LastCalculatedAt = c.EndAt + 1
	data, _ = EncodeCampaign(c)
	if _, err := DecodeCampaign(data); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("calculation past end: got %v", err)
	}

	c = sampleCampaign()
	c.TotalDisbursed = c.TotalToDisburse + 1
	data, _ = EncodeCampaign(c)
	if _, err := DecodeCampaign(data); !errors.Is(err, amm.ErrInvariantViolation) {
		t.Fatalf("over-disbursed: got %v", err)
	}

	c = sampleCampaign()
	c.EscrowLeft = c.TotalToDisburse - c.TotalDisbursed + 1
	data, _ = EncodeCampaign(c)
	if _, err := DecodeCampaign(data); !errors.Is(err, amm.ErrInvariantViolation) {
		t.Fatalf("escrow above remainder: got %v", err)
	}
}

func TestUserRewardRoundTrip(t *testing.T) {
	want := &rewards.UserReward{
		Owner:        testKey(5),
		Pool:         testKey(1),
		Campaign:     testKey(3),
		ShareAmount:  100,
		RewardDebt:   uint256.MustFromDecimal("2500000000000000"),
		Unsettled:    777,
		TotalRewards: 123_456,
		BoostBps:     15_000,
	}
	data, err := EncodeUserReward(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeUserReward(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	want.BoostBps = 0
	data, err = EncodeUserReward(want)
	if err != nil {
		t.Fatalf("encode zero boost: %v", err)
	}
	if _, err := DecodeUserReward(data); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("zero boost: got %v", err)
	}
}

func TestEncodeRejectsOversizedAccumulator(t *testing.T) {
	c := sampleCampaign()
	c.AccPerShare = new(uint256.Int).Lsh(uint256.NewInt(1), 129)
	if _, err := EncodeCampaign(c); !errors.Is(err, amm.ErrArithmeticOverflow) {
		t.Fatalf("129-bit accumulator: got %v", err)
	}
}
