package streams

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/shaiso/Golemata/internal/telemetry"
)

// Format приводит сообщение очереди к строке для синка.
// Nil означает fmt.Sprint.
type Format func(msg any) string

// Sink — приёмник отформатированных сообщений потока.
type Sink interface {
	Write(entry string) error
}

// WriterSink — синк поверх io.Writer (файл, stdout),
// пишет по одной записи в строке.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink создаёт синк поверх io.Writer.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Write реализует интерфейс Sink.
func (s *WriterSink) Write(entry string) error {
	_, err := io.WriteString(s.w, entry+"\n")
	return err
}

// sinkStream — один синк с приватной очередью и горутиной-потребителем.
type sinkStream struct {
	queue  *queue
	sink   Sink
	format Format
}

// Streamer — мультиплексор потоков state/data/command.
//
// На каждую различную очередь-источник заводится ровно одна
// горутина-раздатчик, копирующая каждое сообщение в приватную
// очередь каждого синка; каждый синк обслуживает собственная
// горутина-потребитель. Медленный синк не блокирует ни источник,
// ни соседние синки.
type Streamer struct {
	logger *slog.Logger

	mu     sync.Mutex
	feeds  map[<-chan any][]*sinkStream
	stop   chan struct{}
	feedWg sync.WaitGroup
	sinkWg sync.WaitGroup
}

// NewStreamer создаёт мультиплексор потоков.
func NewStreamer(logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		logger: logger,
		feeds:  make(map[<-chan any][]*sinkStream),
		stop:   make(chan struct{}),
	}
}

// RegisterStream подключает синк к очереди-источнику и запускает
// его горутину-потребитель. Первый синк очереди запускает также
// горутину-раздатчик источника.
func (s *Streamer) RegisterStream(source <-chan any, sink Sink, format Format) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := &sinkStream{queue: newQueue(), sink: sink, format: format}
	if _, known := s.feeds[source]; !known {
		s.feedWg.Add(1)
		go s.feed(source)
	}
	s.feeds[source] = append(s.feeds[source], ss)

	s.sinkWg.Add(1)
	go s.consume(ss)
}

// feed копирует сообщения источника в приватные очереди синков.
// По сигналу stop дочитывает всё, что источник уже буферизовал.
func (s *Streamer) feed(source <-chan any) {
	defer s.feedWg.Done()
	for {
		select {
		case <-s.stop:
			for {
				select {
				case msg, ok := <-source:
					if !ok {
						return
					}
					s.dispatch(source, msg)
				default:
					return
				}
			}
		case msg, ok := <-source:
			if !ok {
				return
			}
			s.dispatch(source, msg)
		}
	}
}

// dispatch кладёт сообщение в приватную очередь каждого синка источника.
func (s *Streamer) dispatch(source <-chan any, msg any) {
	s.mu.Lock()
	sinks := s.feeds[source]
	s.mu.Unlock()
	for _, ss := range sinks {
		ss.queue.push(msg)
	}
}

// consume пишет сообщения приватной очереди в синк.
// После закрытия очереди дописывает всё уже поставленное в неё.
func (s *Streamer) consume(ss *sinkStream) {
	defer s.sinkWg.Done()
	for {
		msg, ok := ss.queue.pop()
		if !ok {
			return
		}
		entry := fmt.Sprint(msg)
		if ss.format != nil {
			entry = ss.format(msg)
		}
		if err := ss.sink.Write(entry); err != nil {
			s.logger.Error("stream sink write failed", "error", err)
			continue
		}
		telemetry.StreamMessages.Inc()
	}
}

// Stop останавливает раздатчики и дожидается, пока потребители
// допишут уже поставленные в очереди сообщения.
func (s *Streamer) Stop() {
	s.mu.Lock()
	select {
	case <-s.stop:
		s.mu.Unlock()
		return
	default:
	}
	close(s.stop)
	s.mu.Unlock()

	// Раздатчики дочитывают буферы источников и выходят; только после
	// этого закрытие очередей фиксирует границу дозаписи.
	s.feedWg.Wait()

	s.mu.Lock()
	var all []*sinkStream
	for _, sinks := range s.feeds {
		all = append(all, sinks...)
	}
	s.mu.Unlock()

	for _, ss := range all {
		ss.queue.close()
	}
	s.sinkWg.Wait()
}
