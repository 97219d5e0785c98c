package engine

// Option mirrors the two listening modes: plain address reuse, or address
// plus port reuse for multi-binder setups.
type Option int

const (
	ReuseAddr Option = iota
	ReusePortReuseAddr
)

const (
	RoundRobinLB = "round_robin"
	LeastConnLB  = "least_conn"
)

// Options is the config-file shape of a server. Zero values give a
// single-loop round-robin server with the built-in connection defaults.
type Options struct {
	Name          string `yaml:"name"`
	Addr          string `yaml:"addr"`
	ThreadNum     int    `yaml:"thread_num"`
	ReusePort     bool   `yaml:"reuse_port"`
	Balancer      string `yaml:"balancer"`
	TcpNoDelay    bool   `yaml:"tcp_no_delay"`
	KeepAliveSecs int    `yaml:"keep_alive_secs"`
	HighWaterMark int    `yaml:"high_water_mark"`
}
