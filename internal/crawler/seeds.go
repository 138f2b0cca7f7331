package crawler

// DefaultSeedHandles bootstraps discovery when the cache is empty. These are
// well-known Swahili-language accounts; the list survives cache growth so a
// cleared cache can always restart from them.
var DefaultSeedHandles = []string{
	"swahilitimes.bsky.social",
	"habarizatanzania.bsky.social",
	"kenyannews.bsky.social",
	"sautiyaafrika.bsky.social",
	"bongotaarifa.bsky.social",
	"kiswahilihub.bsky.social",
}

// swahiliHashtags is the curated tag list for the hashtag channel, spanning
// the language itself, East African geography, and recurring topics.
var swahiliHashtags = []string{
	// language
	"kiswahili",
	"swahili",
	"lughayetu",
	// geography
	"tanzania",
	"kenya",
	"uganda",
	"zanzibar",
	"daressalaam",
	"nairobi",
	"mombasa",
	"eastafrica",
	// topics
	"habari",
	"michezo",
	"siasa",
	"bongofleva",
	"utamaduni",
}

// swahiliPhrases are common expressions used by the phrase channel. Each is
// distinctive enough that a full-text match is a strong language signal.
var swahiliPhrases = []string{
	"habari za leo",
	"asante sana",
	"karibu sana",
	"pole sana",
	"hongera sana",
	"tutaonana kesho",
	"mambo vipi",
	"nimefurahi sana",
}

// backfillHashtags is the default subset used by the shortfall backfill when
// the caller supplied no tag filters.
var backfillHashtags = []string{
	"kiswahili",
	"swahili",
	"tanzania",
	"kenya",
	"habari",
}

// BackfillHashtags returns the default backfill tag set.
func BackfillHashtags() []string {
	return append([]string(nil), backfillHashtags...)
}

// Phrases returns the phrase list used by the phrase channel.
func Phrases() []string {
	return append([]string(nil), swahiliPhrases...)
}

// Hashtags returns the curated hashtag list.
func Hashtags() []string {
	return append([]string(nil), swahiliHashtags...)
}
