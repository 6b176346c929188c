//go:build bticard && cgo

package adapter

/*
#cgo windows LDFLAGS: -lBTICARD64 -lBTI42964
#cgo linux LDFLAGS: -lbticard -lbti429
#include <stdlib.h>
#include "BTICARD.H"
#include "BTI429.H"
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/mklimuk/arinc429"
)

func init() {
	register("bticard", func() (arinc429.Card, error) {
		return NewBTICard(), nil
	})
}

// BTICard drives a vendor card through the BTICARD and BTI429 libraries.
// Vendor handles stay on the C side; callers see opaque ids.
type BTICard struct {
	mx    sync.Mutex
	next  uintptr
	cards map[arinc429.DeviceHandle]C.HCARD
	cores map[arinc429.CoreHandle]C.HCORE
}

func NewBTICard() *BTICard {
	return &BTICard{
		cards: make(map[arinc429.DeviceHandle]C.HCARD),
		cores: make(map[arinc429.CoreHandle]C.HCORE),
	}
}

func (b *BTICard) core(h arinc429.CoreHandle) C.HCORE {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.cores[h]
}

func check(op string, rc C.ERRVAL) error {
	if rc < 0 {
		return arinc429.NewHardwareError(op, arinc429.Code(rc))
	}
	return nil
}

func (b *BTICard) OpenDevice(index int) (arinc429.DeviceHandle, error) {
	var h C.HCARD
	if err := check("BTICard_CardOpen", C.BTICard_CardOpen(&h, C.INT(index))); err != nil {
		return 0, err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	b.next++
	dev := arinc429.DeviceHandle(b.next)
	b.cards[dev] = h
	return dev, nil
}

func (b *BTICard) OpenCore(index int, dev arinc429.DeviceHandle) (arinc429.CoreHandle, error) {
	b.mx.Lock()
	card, ok := b.cards[dev]
	b.mx.Unlock()
	if !ok {
		return 0, arinc429.NewHardwareError("BTICard_CoreOpen", arinc429.CodeFail)
	}
	var h C.HCORE
	if err := check("BTICard_CoreOpen", C.BTICard_CoreOpen(&h, C.INT(index), card)); err != nil {
		return 0, err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	b.next++
	core := arinc429.CoreHandle(b.next)
	b.cores[core] = h
	return core, nil
}

func (b *BTICard) ResetCard(core arinc429.CoreHandle) {
	C.BTICard_CardReset(b.core(core))
}

func (b *BTICard) CloseDevice(dev arinc429.DeviceHandle) error {
	b.mx.Lock()
	card, ok := b.cards[dev]
	delete(b.cards, dev)
	// closing the card invalidates every core opened on it
	clear(b.cores)
	b.mx.Unlock()
	if !ok {
		return arinc429.NewHardwareError("BTICard_CardClose", arinc429.CodeFail)
	}
	return check("BTICard_CardClose", C.BTICard_CardClose(card))
}

func (b *BTICard) ConfigureEventLog(flags arinc429.EventLogFlags, count int, core arinc429.CoreHandle) error {
	var ctrl C.USHORT
	if flags&arinc429.EventLogEnable != 0 {
		ctrl = C.LOGCFG_ENABLE
	}
	return check("BTICard_EventLogConfig", C.BTICard_EventLogConfig(ctrl, C.USHORT(count), b.core(core)))
}

func (b *BTICard) ReadEventLog(core arinc429.CoreHandle) (arinc429.Event, bool) {
	var (
		typ  C.USHORT
		info C.ULONG
		ch   C.INT
	)
	if C.BTICard_EventLogRd(&typ, &info, &ch, b.core(core)) == 0 {
		return arinc429.Event{}, false
	}
	ev := arinc429.Event{Info: uint32(info), Channel: int(ch)}
	switch typ {
	case C.EVENTTYPE_429LIST:
		ev.Type = arinc429.EventListBuffer
	case C.EVENTTYPE_429ERR:
		ev.Type = arinc429.EventDecoderError
	default:
		ev.Type = arinc429.EventOther
	}
	return ev, true
}

var channelFlags = map[arinc429.ChannelFlags]C.ULONG{
	arinc429.ChannelHighSpeed:  C.CHCFG429_HIGHSPEED,
	arinc429.ChannelAutoSpeed:  C.CHCFG429_AUTOSPEED,
	arinc429.ChannelParityEven: C.CHCFG429_PAREVEN,
	arinc429.ChannelParityData: C.CHCFG429_PARDATA,
	arinc429.ChannelLogErrors:  C.CHCFG429_LOGERR,
	arinc429.ChannelSelfTest:   C.CHCFG429_SELFTEST,
}

var queueFlags = map[arinc429.QueueFlags]C.ULONG{
	arinc429.QueueCircular: C.LISTCRT429_CIRCULAR,
	arinc429.QueuePingPong: C.LISTCRT429_PINGPONG,
	arinc429.QueueLog:      C.LISTCRT429_LOG,
}

var filterFlags = map[arinc429.FilterFlags]C.ULONG{
	arinc429.FilterSequential: C.MSGCRT429_SEQ,
	arinc429.FilterLog:        C.MSGCRT429_LOG,
	arinc429.FilterTimeTag:    C.MSGCRT429_TIMETAG,
}

func vendorFlags[F ~uint32](flags F, table map[F]C.ULONG) C.ULONG {
	var out C.ULONG
	for f, v := range table {
		if flags&f != 0 {
			out |= v
		}
	}
	return out
}

func (b *BTICard) ConfigureChannel(flags arinc429.ChannelFlags, channel int, core arinc429.CoreHandle) error {
	cfg := C.ULONG(C.CHCFG429_DEFAULT) | vendorFlags(flags, channelFlags)
	return check("BTI429_ChConfig", C.BTI429_ChConfig(cfg, C.INT(channel), b.core(core)))
}

func (b *BTICard) DefaultFilter(flags arinc429.FilterFlags, channel int, core arinc429.CoreHandle) (arinc429.FilterAddr, error) {
	cfg := C.ULONG(C.MSGCRT429_DEFAULT) | vendorFlags(flags, filterFlags)
	addr := C.BTI429_FilterDefault(cfg, C.INT(channel), b.core(core))
	if addr == 0 {
		return 0, arinc429.NewHardwareError("BTI429_FilterDefault", arinc429.CodeFail)
	}
	return arinc429.FilterAddr(addr), nil
}

func (b *BTICard) CreateReceiveQueue(flags arinc429.QueueFlags, capacity int, filter arinc429.FilterAddr, core arinc429.CoreHandle) (arinc429.QueueID, error) {
	cfg := C.ULONG(C.LISTCRT429_FIFO) | vendorFlags(flags, queueFlags)
	addr := C.BTI429_ListRcvCreate(cfg, C.INT(capacity), C.MSGADDR(filter), b.core(core))
	if addr == 0 {
		return 0, arinc429.NewHardwareError("BTI429_ListRcvCreate", arinc429.CodeFail)
	}
	return arinc429.QueueID(addr), nil
}

func (b *BTICard) QueueStatus(q arinc429.QueueID, core arinc429.CoreHandle) (arinc429.QueueState, error) {
	rc := C.BTI429_ListStatus(C.LISTADDR(q), b.core(core))
	switch {
	case rc < 0:
		return arinc429.QueueEmpty, arinc429.NewHardwareError("BTI429_ListStatus", arinc429.Code(rc))
	case rc == C.STAT_PARTIAL:
		return arinc429.QueuePartial, nil
	case rc == C.STAT_FULL:
		return arinc429.QueueFull, nil
	default:
		return arinc429.QueueEmpty, nil
	}
}

func (b *BTICard) ReadWord(q arinc429.QueueID, core arinc429.CoreHandle) arinc429.Word {
	return arinc429.Word(C.BTI429_ListDataRd(C.LISTADDR(q), b.core(core)))
}

func (b *BTICard) ReadBlock(buf []arinc429.Word, q arinc429.QueueID, core arinc429.CoreHandle) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	count := C.USHORT(min(len(buf), 0xFFFF))
	raw := (*C.ULONG)(C.malloc(C.size_t(count) * C.size_t(unsafe.Sizeof(C.ULONG(0)))))
	defer C.free(unsafe.Pointer(raw))
	ok := C.BTI429_ListDataBlkRd(raw, &count, C.LISTADDR(q), b.core(core))
	words := unsafe.Slice(raw, int(count))
	for i, w := range words {
		buf[i] = arinc429.Word(w)
	}
	if ok == 0 {
		return int(count), arinc429.NewHardwareError("BTI429_ListDataBlkRd", arinc429.CodeFail)
	}
	return int(count), nil
}

func (b *BTICard) StartCard(core arinc429.CoreHandle) error {
	return check("BTICard_CardStart", C.BTICard_CardStart(b.core(core)))
}

func (b *BTICard) StopCard(core arinc429.CoreHandle) bool {
	return C.BTICard_CardStop(b.core(core)) != 0
}

func (b *BTICard) ReadDiscrete(dionum int, core arinc429.CoreHandle) (bool, error) {
	return C.BTICard_ExtDIORd(C.INT(dionum), b.core(core)) != 0, nil
}

func (b *BTICard) ErrorDescription(code arinc429.Code, core arinc429.CoreHandle) string {
	return C.GoString(C.BTICard_ErrDescStr(C.ERRVAL(code), b.core(core)))
}
