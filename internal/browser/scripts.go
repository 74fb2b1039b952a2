package browser

// Functions evaluated with the element (or document) bound to this. Both
// CDP backends evaluate them.
const (
	selectedStateFunction = `function() { return !!(this.checked || this.selected); }`

	attributeFunction = `function(name) {
	var value = this[name];
	if (value === undefined || value === null || typeof value === "object" || typeof value === "function") {
		value = this.getAttribute(name);
	}
	return value === undefined || value === null ? "" : String(value);
}`

	visibleTextFunction = `function() {
	var text = this.innerText;
	if (text === undefined || text === null) { text = this.textContent || ""; }
	return String(text).trim();
}`

	frameDocumentFunction = `function() {
	var tag = (this.tagName || "").toLowerCase();
	if (tag !== "iframe" && tag !== "frame") { return null; }
	return this.contentDocument;
}`

	lookupFunction = `function(strategy, value) {
	var root = this;
	var matches = [];
	switch (strategy) {
	case "xpath":
		var snapshot = root.evaluate(value, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (var index = 0; index < snapshot.snapshotLength; index++) {
			matches.push(snapshot.snapshotItem(index));
		}
		return matches;
	case "link text":
		var anchors = root.querySelectorAll("a");
		for (var anchorIndex = 0; anchorIndex < anchors.length; anchorIndex++) {
			var anchorText = (anchors[anchorIndex].innerText || anchors[anchorIndex].textContent || "").trim();
			if (anchorText === value) { matches.push(anchors[anchorIndex]); }
		}
		return matches;
	default:
		return Array.prototype.slice.call(root.querySelectorAll(value));
	}
}`
)
