package kafka

import (
	"testing"

	"kanal/driver"
)

func TestOffsetTracker_SnapshotIsNextOffset(t *testing.T) {
	tr := newOffsetTracker()
	tr.observe(driver.Record{Topic: "t1", Partition: 0, Offset: 4})
	tr.observe(driver.Record{Topic: "t1", Partition: 0, Offset: 5})
	tr.observe(driver.Record{Topic: "t1", Partition: 1, Offset: 9})

	snap := tr.snapshot()
	if len(snap) != 2 {
		t.Fatalf("want 2 partitions in snapshot, got %v", snap)
	}
	for _, o := range snap {
		switch o.Partition {
		case 0:
			if o.Offset != 6 {
				t.Fatalf("partition 0: want next offset 6, got %d", o.Offset)
			}
		case 1:
			if o.Offset != 10 {
				t.Fatalf("partition 1: want next offset 10, got %d", o.Offset)
			}
		default:
			t.Fatalf("unexpected partition in snapshot: %+v", o)
		}
	}
}

func TestOffsetTracker_DropAndClear(t *testing.T) {
	tr := newOffsetTracker()
	tr.observe(driver.Record{Topic: "t1", Partition: 0, Offset: 1})
	tr.observe(driver.Record{Topic: "t1", Partition: 1, Offset: 2})

	tr.drop([]driver.TopicPartition{{Topic: "t1", Partition: 0}})
	if snap := tr.snapshot(); len(snap) != 1 || snap[0].Partition != 1 {
		t.Fatalf("want only partition 1 after drop, got %v", snap)
	}

	tr.clear()
	if snap := tr.snapshot(); snap != nil {
		t.Fatalf("want empty snapshot after clear, got %v", snap)
	}
}
