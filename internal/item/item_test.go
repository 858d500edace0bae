package item_test

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/runelang/rune/internal/item"
)

func TestJoinAppendsWithoutMutatingTheReceiver(t *testing.T) {
	root := item.Item{{Kind: item.KindCrate, Name: "root"}}
	got := root.JoinNamed("shapes").JoinNamed("area")

	want := item.Item{
		{Kind: item.KindCrate, Name: "root"},
		{Kind: item.KindNamed, Name: "shapes"},
		{Kind: item.KindNamed, Name: "area"},
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("JoinNamed chain diverged from expected path: %v", diff)
	}

	// root itself must be untouched by the Join chain above.
	if diff := deep.Equal(root, item.Item{{Kind: item.KindCrate, Name: "root"}}); diff != nil {
		t.Errorf("Join mutated its receiver: %v", diff)
	}
}

func TestItemBufCloneIsIndependentOfTheOriginal(t *testing.T) {
	buf := item.NewItemBuf("root")
	buf.PushNamed("shapes")
	mark := buf.PushNamed("area")

	clone := buf.Clone()
	buf.Truncate(mark - 1)
	buf.PushNamed("perimeter")

	want := item.Item{
		{Kind: item.KindCrate, Name: "root"},
		{Kind: item.KindNamed, Name: "shapes"},
		{Kind: item.KindNamed, Name: "area"},
	}
	if diff := deep.Equal(clone.Item(), want); diff != nil {
		t.Errorf("clone should be unaffected by later mutation of the original: %v", diff)
	}

	gotOriginal := item.Item{
		{Kind: item.KindCrate, Name: "root"},
		{Kind: item.KindNamed, Name: "shapes"},
		{Kind: item.KindNamed, Name: "perimeter"},
	}
	if diff := deep.Equal(buf.Item(), gotOriginal); diff != nil {
		t.Errorf("original buffer did not reflect truncate+push: %v", diff)
	}
}

func TestTypeHashIsStableForEqualItemsAndDiffersOtherwise(t *testing.T) {
	a := item.Item{{Kind: item.KindCrate, Name: "root"}}.JoinNamed("double")
	b := item.Item{{Kind: item.KindCrate, Name: "root"}}.JoinNamed("double")
	c := item.Item{{Kind: item.KindCrate, Name: "root"}}.JoinNamed("triple")

	if item.TypeHash(a) != item.TypeHash(b) {
		t.Errorf("equal item paths hashed differently: %#x vs %#x", item.TypeHash(a), item.TypeHash(b))
	}
	if item.TypeHash(a) == item.TypeHash(c) {
		t.Errorf("distinct item paths hashed the same: %#x", item.TypeHash(a))
	}
}

func TestAssociatedDiffersByReceiverAndByName(t *testing.T) {
	point := item.TypeHash(item.Item{{Kind: item.KindCrate, Name: "root"}}.JoinNamed("Point"))
	circle := item.TypeHash(item.Item{{Kind: item.KindCrate, Name: "root"}}.JoinNamed("Circle"))

	pointSum := item.Associated(point, "sum")
	circleSum := item.Associated(circle, "sum")
	pointArea := item.Associated(point, "area")

	if pointSum == circleSum {
		t.Errorf("Associated hash ignored the receiver type hash")
	}
	if pointSum == pointArea {
		t.Errorf("Associated hash ignored the method name")
	}
}
