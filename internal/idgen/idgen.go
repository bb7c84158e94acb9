package idgen

import (
	"fmt"
	"strings"
)

// Generator issues message identifiers.
type Generator interface {
	Generate() (string, error)
}

// Sequencer issues strictly increasing numbers for the lifetime of a process.
type Sequencer interface {
	Next() (int64, error)
}

// Generator types accepted by New.
const (
	TypeSnowflake = "snowflake"
	TypeULID      = "ulid"
	TypeUUID      = "uuid"
	TypeKSUID     = "ksuid"
	TypeNanoID    = "nanoid"
	TypeCUID2     = "cuid2"
)

type Config struct {
	Type      string          `mapstructure:"type"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
	NanoID    NanoIDConfig    `mapstructure:"nanoid"`
	CUID2     CUID2Config     `mapstructure:"cuid2"`
}

type SnowflakeConfig struct {
	MachineID int64 `mapstructure:"machine_id"`
	Epoch     int64 `mapstructure:"epoch"`
}

type NanoIDConfig struct {
	Size     int    `mapstructure:"size"`
	Alphabet string `mapstructure:"alphabet"`
}

type CUID2Config struct {
	Length int `mapstructure:"length"`
}

func DefaultConfig() Config {
	return Config{
		Type: TypeSnowflake,
		Snowflake: SnowflakeConfig{
			MachineID: 1,
			Epoch:     DefaultEpoch,
		},
		NanoID: NanoIDConfig{
			Size:     DefaultNanoIDSize,
			Alphabet: DefaultNanoIDAlphabet,
		},
		CUID2: CUID2Config{Length: DefaultCUID2Length},
	}
}

// New builds the id generator named by cfg.Type. When the type is snowflake
// the returned generator is seq itself, so ids and sequence numbers share one
// clock.
func New(cfg Config, seq *Snowflake) (Generator, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeSnowflake:
		if seq != nil {
			return seq, nil
		}
		return NewSnowflake(cfg.Snowflake.MachineID, cfg.Snowflake.Epoch)
	case TypeULID:
		return NewULID(), nil
	case TypeUUID:
		return NewUUID(), nil
	case TypeKSUID:
		return NewKSUID(), nil
	case TypeNanoID:
		return NewNanoID(cfg.NanoID.Size, cfg.NanoID.Alphabet)
	case TypeCUID2:
		return NewCUID2(cfg.CUID2.Length)
	default:
		return nil, fmt.Errorf("unsupported id type: %s", cfg.Type)
	}
}
