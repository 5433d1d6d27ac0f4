package modbus

// RegisterParam names one 16-bit register sampled into the payload stream.
type RegisterParam struct {
	Name    string  `json:"name" yaml:"name"`
	Addr    uint16  `json:"addr" yaml:"addr"`
	Scale   float64 `json:"scale" yaml:"scale"` // raw / scale
	Holding bool    `json:"holding" yaml:"holding"`
}

type Client interface {
	API
	ReadFloat(param RegisterParam) (float64, error)
	Close() error
}

type API interface {
	ReadHoldingRegisters(address, quantity uint16) (results []byte, err error)
	ReadInputRegisters(address, quantity uint16) (results []byte, err error)
}
