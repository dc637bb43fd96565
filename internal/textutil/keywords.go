package textutil

// aliasEntry 规范关键词及其表记变体（顺序固定，别名输出顺序与此一致）
type aliasEntry struct {
	Key   string
	Terms []string
}

var normalizedKeywords = []aliasEntry{
	{
		Key: "xrd",
		Terms: []string{
			"xrd",
			"x線回折",
			"x線回折装置",
			"x線回折測定",
			"x-ray diffraction",
			"xray diffraction",
			"x-ray diffractometer",
			"xray diffractometer",
		},
	},
	{Key: "sem", Terms: []string{"sem", "走査型電子顕微鏡", "走査電子顕微鏡"}},
	{Key: "tem", Terms: []string{"tem", "透過型電子顕微鏡", "透過電子顕微鏡"}},
	{Key: "xps", Terms: []string{"xps", "x線光電子分光", "x線光電子分光法"}},
	{Key: "nmr", Terms: []string{"nmr", "核磁気共鳴", "核磁気共鳴装置"}},
	{Key: "ftir", Terms: []string{"ftir", "フーリエ変換赤外分光", "フーリエ変換赤外分光法"}},
	{Key: "afm", Terms: []string{"afm", "原子間力顕微鏡"}},
	{Key: "lcms", Terms: []string{"lcms", "液体クロマトグラフ質量分析", "液クロ質量分析"}},
	{Key: "gcms", Terms: []string{"gcms", "ガスクロマトグラフ質量分析", "ガスクロ質量分析"}},
}
