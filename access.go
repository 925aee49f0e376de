package strata

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// principalNotInList is the sentinel principal id of the synthesized
// not-in-list deny rule: a non-empty allow list at container or root scope
// implicitly denies everyone not in the list, and that implication is
// materialized as a stored rule rather than left to evaluation-time logic.
const principalNotInList int64 = -1

// ruleSetting matches access settings in a document's preference sections.
// The WEB and TOPIC keywords are kept for setting compatibility with
// documents written for the predecessor system; they map to container and
// document scope.
var ruleSetting = regexp.MustCompile(`^(ALLOW|DENY)(ROOT|WEB|TOPIC)([A-Z]+)$`)

// accessRule is one extracted rule before principal interning.
type accessRule struct {
	Scope      Scope
	Permission Permission
	Mode       Mode
	Principals []string
}

// splitPrincipals parses a rule setting's value: principal names separated
// by commas and/or whitespace.
func splitPrincipals(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// extractRules scans the document's preference sections for access settings
// and returns the normalized rule set:
//
//   - an empty deny list at document scope becomes an explicit allow for the
//     everyone-group at that scope;
//   - a non-empty allow list at container or root scope gains a synthesized
//     not-in-list deny rule;
//   - empty lists are otherwise dropped.
func extractRules(doc *Document) []accessRule {
	var rules []accessRule
	for _, sec := range doc.SectionsOf(SectionPreference) {
		m := ruleSetting.FindStringSubmatch(sec.Name)
		if m == nil {
			continue
		}
		value, _ := sec.Get(AttrValue)
		principals := splitPrincipals(value)

		var scope Scope
		switch m[2] {
		case "ROOT":
			scope = ScopeRoot
		case "WEB":
			scope = ScopeContainer
		case "TOPIC":
			scope = ScopeDocument
		}
		mode := Mode(m[3])

		if m[1] == "DENY" {
			if len(principals) == 0 {
				if scope == ScopeDocument {
					rules = append(rules, accessRule{
						Scope:      scope,
						Permission: PermAllow,
						Mode:       mode,
						Principals: []string{"EveryoneGroup"},
					})
				}
				continue
			}
			rules = append(rules, accessRule{
				Scope:      scope,
				Permission: PermDeny,
				Mode:       mode,
				Principals: principals,
			})
			continue
		}

		if len(principals) == 0 {
			continue
		}
		rules = append(rules, accessRule{
			Scope:      scope,
			Permission: PermAllow,
			Mode:       mode,
			Principals: principals,
		})
		if scope != ScopeDocument {
			rules = append(rules, accessRule{
				Scope:      scope,
				Permission: PermSyntheticDeny,
				Mode:       mode,
			})
		}
	}
	return rules
}

// captureAccessRules extracts and stores the document's access rules for a
// revision. Rules are recreated wholesale on every save; the caller discards
// the superseded revision's rules first. Container-scope rules carry the
// container id so they apply to sibling documents; root-scope rules carry
// neither.
func (s *Store) captureAccessRules(ctx context.Context, db Execer, revisionID, containerID int64, doc *Document) error {
	rules := extractRules(doc)
	if len(rules) == 0 {
		return nil
	}

	// Intern all principal and mode names in one batch, on the main handle:
	// dictionary writes stay committed even if the enclosing save fails.
	var strs []string
	for _, r := range rules {
		strs = append(strs, string(r.Mode))
		strs = append(strs, r.Principals...)
	}
	ids, err := s.names.resolve(ctx, s.db, strs)
	if err != nil {
		return err
	}

	ins := newBulkInsert("strata_access", "revision_id", "container_id", "scope", "permission", "mode_id", "principal_id")
	for _, r := range rules {
		var cid any
		if r.Scope == ScopeContainer {
			cid = containerID
		}
		modeID := ids[string(r.Mode)]
		if r.Permission == PermSyntheticDeny {
			ins.add(revisionID, cid, int16(r.Scope), int16(r.Permission), modeID, principalNotInList)
			continue
		}
		for _, p := range r.Principals {
			ins.add(revisionID, cid, int16(r.Scope), int16(r.Permission), modeID, ids[p])
		}
	}
	if err := ins.exec(ctx, db); err != nil {
		return fmt.Errorf("capturing access rules: %w", err)
	}
	return nil
}

// deleteAccessRules removes all rules captured for a revision.
func (s *Store) deleteAccessRules(ctx context.Context, db Execer, revisionID int64) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM strata_access WHERE revision_id = $1", revisionID); err != nil {
		return fmt.Errorf("deleting access rules: %w", err)
	}
	return nil
}

// GroupResolver supplies direct group memberships for a principal. The
// resolver expands memberships transitively and adds the implicit
// everyone-group itself.
type GroupResolver interface {
	Groups(ctx context.Context, principal int64) ([]int64, error)
}

// TableGroupResolver reads direct memberships from the strata_groups table.
type TableGroupResolver struct {
	db Querier
}

// NewTableGroupResolver returns a GroupResolver over the given handle.
func NewTableGroupResolver(db Querier) *TableGroupResolver {
	return &TableGroupResolver{db: db}
}

// Groups returns the groups the principal is a direct member of.
func (g *TableGroupResolver) Groups(ctx context.Context, principal int64) ([]int64, error) {
	rows, err := g.db.QueryContext(ctx,
		"SELECT group_id FROM strata_groups WHERE member_id = $1", principal)
	if err != nil {
		return nil, fmt.Errorf("looking up groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Decision is the outcome of one access evaluation with its human-readable
// reason. The reason names the decisive rule's scope, so a denied caller can
// tell which level of the hierarchy shut the door.
type Decision struct {
	Allowed bool
	Reason  string
}

// storedRule is one access row as loaded for evaluation. Rules are kept
// sorted by permission so denies are evaluated before allows before
// synthesized not-in-list denies within each scope.
type storedRule struct {
	Permission Permission
	Principal  int64
}

type containerMemoKey struct {
	container int64
	principal int64
	mode      int64
}

type docMemoKey struct {
	doc       int64 // document name id
	container int64
	principal int64
	mode      int64
}

type docRulesKey struct {
	container int64
	mode      int64
}

// Resolver evaluates scope-cascading access rules. It memoizes group
// expansion per principal, container decisions per container+principal+mode,
// and document rules bulk-loaded per container+mode, all for its own
// lifetime. Create one per request, or share one and accept that rule
// changes are not observed until a fresh Resolver is created. A Resolver is
// safe for concurrent use.
type Resolver struct {
	store  *Store
	groups GroupResolver

	mu            sync.Mutex
	identity      map[int64]map[int64]bool
	rootRules     map[int64][]storedRule
	containerMemo map[containerMemoKey]*Decision
	docRules      map[docRulesKey]map[int64][]storedRule
	docMemo       map[docMemoKey]*Decision
}

// NewResolver creates a Resolver over the Store. A nil groups resolver uses
// the strata_groups table on the Store's handle.
func (s *Store) NewResolver(groups GroupResolver) *Resolver {
	if groups == nil {
		groups = NewTableGroupResolver(s.db)
	}
	return &Resolver{
		store:         s,
		groups:        groups,
		identity:      make(map[int64]map[int64]bool),
		rootRules:     make(map[int64][]storedRule),
		containerMemo: make(map[containerMemoKey]*Decision),
		docRules:      make(map[docRulesKey]map[int64][]storedRule),
		docMemo:       make(map[docMemoKey]*Decision),
	}
}

// Check reports whether the principal may perform mode on the document.
func (r *Resolver) Check(ctx context.Context, principal int64, mode Mode, id DocID) (bool, error) {
	d, err := r.Explain(ctx, principal, mode, id)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Explain evaluates access for a document and returns the decision with its
// reason. Evaluation cascades from broad to narrow, first decisive match
// wins: administrator bypass, root-scope deny then allow, container-scope
// deny then allow, document-scope deny then allow, default permit.
func (r *Resolver) Explain(ctx context.Context, principal int64, mode Mode, id DocID) (Decision, error) {
	modeID, err := r.store.names.resolveOne(ctx, r.store.db, string(mode))
	if err != nil {
		return Decision{}, err
	}
	ident, err := r.identitySet(ctx, principal)
	if err != nil {
		return Decision{}, err
	}
	if ident[NameIDAdminGroup] {
		return Decision{Allowed: true, Reason: "administrator"}, nil
	}

	containerID, err := r.store.containerID(ctx, r.store.db, id.Container)
	if err != nil {
		return Decision{}, err
	}

	if d, err := r.broaderScopes(ctx, ident, principal, modeID, containerID); err != nil {
		return Decision{}, err
	} else if d != nil {
		return *d, nil
	}

	nameID, err := r.store.names.resolveOne(ctx, r.store.db, id.Name)
	if err != nil {
		return Decision{}, err
	}
	if d, err := r.documentScope(ctx, ident, principal, modeID, containerID, nameID); err != nil {
		return Decision{}, err
	} else if d != nil {
		return *d, nil
	}

	return Decision{Allowed: true, Reason: "no rule matched; permitted by default"}, nil
}

// ExplainContainer evaluates access at container scope only (root and
// container rules), for callers gating container-level operations.
func (r *Resolver) ExplainContainer(ctx context.Context, principal int64, mode Mode, container string) (Decision, error) {
	modeID, err := r.store.names.resolveOne(ctx, r.store.db, string(mode))
	if err != nil {
		return Decision{}, err
	}
	ident, err := r.identitySet(ctx, principal)
	if err != nil {
		return Decision{}, err
	}
	if ident[NameIDAdminGroup] {
		return Decision{Allowed: true, Reason: "administrator"}, nil
	}
	containerID, err := r.store.containerID(ctx, r.store.db, container)
	if err != nil {
		return Decision{}, err
	}
	d, err := r.broaderScopes(ctx, ident, principal, modeID, containerID)
	if err != nil {
		return Decision{}, err
	}
	if d != nil {
		return *d, nil
	}
	return Decision{Allowed: true, Reason: "no rule matched; permitted by default"}, nil
}

// broaderScopes evaluates the root and container scopes, memoizing the
// container decision. A nil decision means no rule was decisive.
func (r *Resolver) broaderScopes(ctx context.Context, ident map[int64]bool, principal, modeID, containerID int64) (*Decision, error) {
	root, err := r.loadRootRules(ctx, modeID)
	if err != nil {
		return nil, err
	}
	if d := decide(root, ident, "root"); d != nil {
		return d, nil
	}

	key := containerMemoKey{containerID, principal, modeID}
	r.mu.Lock()
	d, memoized := r.containerMemo[key]
	r.mu.Unlock()
	if memoized {
		return d, nil
	}

	rules, err := r.loadScopedRules(ctx,
		"SELECT permission, principal_id FROM strata_access WHERE scope = $1 AND container_id = $2 AND mode_id = $3 ORDER BY permission",
		int16(ScopeContainer), containerID, modeID)
	if err != nil {
		return nil, err
	}
	d = decide(rules, ident, "container")

	r.mu.Lock()
	r.containerMemo[key] = d
	r.mu.Unlock()
	return d, nil
}

// documentScope evaluates document-scope rules, bulk-loading every
// document's rules for the container and mode in one query on first use.
func (r *Resolver) documentScope(ctx context.Context, ident map[int64]bool, principal, modeID, containerID, nameID int64) (*Decision, error) {
	memoKey := docMemoKey{nameID, containerID, principal, modeID}
	r.mu.Lock()
	if d, ok := r.docMemo[memoKey]; ok {
		r.mu.Unlock()
		return d, nil
	}
	r.mu.Unlock()

	byDoc, err := r.loadDocRules(ctx, containerID, modeID)
	if err != nil {
		return nil, err
	}
	d := decide(byDoc[nameID], ident, "document")

	r.mu.Lock()
	r.docMemo[memoKey] = d
	r.mu.Unlock()
	return d, nil
}

// decide applies one scope's rules, sorted deny/allow/synthetic, against an
// identity set. Returns nil when no rule matches.
func decide(rules []storedRule, ident map[int64]bool, scope string) *Decision {
	for _, rule := range rules {
		if rule.Principal != principalNotInList && !ident[rule.Principal] {
			continue
		}
		switch rule.Permission {
		case PermDeny:
			return &Decision{Allowed: false, Reason: "denied at " + scope + " scope"}
		case PermAllow:
			return &Decision{Allowed: true, Reason: "allowed at " + scope + " scope"}
		case PermSyntheticDeny:
			return &Decision{Allowed: false, Reason: "not in allow list at " + scope + " scope"}
		}
	}
	return nil
}

func (r *Resolver) loadRootRules(ctx context.Context, modeID int64) ([]storedRule, error) {
	r.mu.Lock()
	rules, ok := r.rootRules[modeID]
	r.mu.Unlock()
	if ok {
		return rules, nil
	}
	rules, err := r.loadScopedRules(ctx,
		"SELECT permission, principal_id FROM strata_access WHERE scope = $1 AND mode_id = $2 ORDER BY permission",
		int16(ScopeRoot), modeID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.rootRules[modeID] = rules
	r.mu.Unlock()
	return rules, nil
}

func (r *Resolver) loadScopedRules(ctx context.Context, query string, args ...any) ([]storedRule, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading access rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []storedRule
	for rows.Next() {
		var rule storedRule
		var perm int16
		if err := rows.Scan(&perm, &rule.Principal); err != nil {
			return nil, err
		}
		rule.Permission = Permission(perm)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// loadDocRules loads and caches every document-scope rule in a container for
// one mode, keyed by document name id.
func (r *Resolver) loadDocRules(ctx context.Context, containerID, modeID int64) (map[int64][]storedRule, error) {
	key := docRulesKey{containerID, modeID}
	r.mu.Lock()
	byDoc, ok := r.docRules[key]
	r.mu.Unlock()
	if ok {
		return byDoc, nil
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT rev.name_id, a.permission, a.principal_id
		FROM strata_access a
		JOIN strata_revisions rev ON rev.id = a.revision_id
		WHERE a.scope = $1 AND rev.container_id = $2 AND a.mode_id = $3 AND rev.namespace = $4`,
		int16(ScopeDocument), containerID, modeID, nsLatest)
	if err != nil {
		return nil, fmt.Errorf("loading document access rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byDoc = make(map[int64][]storedRule)
	for rows.Next() {
		var nameID int64
		var perm int16
		var rule storedRule
		if err := rows.Scan(&nameID, &perm, &rule.Principal); err != nil {
			return nil, err
		}
		rule.Permission = Permission(perm)
		byDoc[nameID] = append(byDoc[nameID], rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, rules := range byDoc {
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].Permission < rules[j].Permission })
	}

	r.mu.Lock()
	r.docRules[key] = byDoc
	r.mu.Unlock()
	return byDoc, nil
}

// identitySet expands a principal to itself, all transitively reachable
// groups, and the implicit everyone-group. Computed once per principal.
func (r *Resolver) identitySet(ctx context.Context, principal int64) (map[int64]bool, error) {
	r.mu.Lock()
	if s, ok := r.identity[principal]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	set := map[int64]bool{
		principal:           true,
		NameIDEveryoneGroup: true,
	}
	queue := []int64{principal}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		groups, err := r.groups.Groups(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			if !set[g] {
				set[g] = true
				queue = append(queue, g)
			}
		}
	}

	r.mu.Lock()
	r.identity[principal] = set
	r.mu.Unlock()
	return set, nil
}
