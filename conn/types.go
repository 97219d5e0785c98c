package conn

import (
	"time"

	"github.com/zhvoker/Voker-Server/buffer"
)

type ConnectionCallback func(c *TcpConn)

type CloseCallback func(c *TcpConn)

type MessageCallback func(c *TcpConn, buf *buffer.Buffer, receiveTime time.Time)

type WriteCompleteCallback func(c *TcpConn)

type HighWaterMarkCallback func(c *TcpConn, queuedBytes int)
