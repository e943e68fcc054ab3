package offline

import (
	"testing"

	"creatorstudio/testutil"
)

func TestOfflineCacheDoesNotImportRecordStore(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.RecordStoreImport, "the offline cache only depends on blob storage")
}
